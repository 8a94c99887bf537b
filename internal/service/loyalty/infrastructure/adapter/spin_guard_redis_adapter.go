// internal/service/loyalty/infrastructure/adapter/spin_guard_redis_adapter.go
package adapter

import (
	"context"
	"fmt"
	"time"

	"restrohub/internal/pkg/redis"
	"restrohub/internal/service/loyalty/port"
)

const spinCooldownScriptName = "spin_cooldown"

// SpinGuardRedisAdapter 是 port.SpinGuard 的 Redis 实现。
// 冷却窗口的检查和占用在一个 Lua 脚本里完成，两个并发请求
// 不可能同时拿到窗口。
type SpinGuardRedisAdapter struct {
	redisClient *redis.Client
	cooldown    time.Duration
}

// NewSpinGuardRedisAdapter 创建转盘冷却适配器，创建时加载 Lua 脚本。
func NewSpinGuardRedisAdapter(redisClient *redis.Client, cooldown time.Duration) (*SpinGuardRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(spinCooldownScriptName, spinCooldownScript); err != nil {
		return nil, fmt.Errorf("failed to load spin cooldown script: %w", err)
	}
	return &SpinGuardRedisAdapter{
		redisClient: redisClient,
		cooldown:    cooldown,
	}, nil
}

// TryAcquire 对 (user, restaurant) 做一次 check-and-set。
func (a *SpinGuardRedisAdapter) TryAcquire(ctx context.Context, userID, restaurantID string) (bool, error) {
	key := fmt.Sprintf("loyalty:spin:cooldown:{%s}:%s", restaurantID, userID)

	result, err := a.redisClient.RunScript(ctx, spinCooldownScriptName,
		[]string{key}, int64(a.cooldown.Seconds()))
	if err != nil {
		return false, fmt.Errorf("spin guard failed to run script: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code == 1, nil
}

var _ port.SpinGuard = (*SpinGuardRedisAdapter)(nil)

var spinCooldownScript = `
-- KEYS[1]: 冷却标记的 Key, 例如: loyalty:spin:cooldown:{rest_1}:user_42
-- ARGV[1]: 冷却窗口秒数

-- 1. 窗口内已有标记则拒绝
if redis.call('exists', KEYS[1]) == 1 then
    return 0
end

-- 2. 占用窗口并设置过期
redis.call('set', KEYS[1], 1, 'EX', tonumber(ARGV[1]))
return 1
`
