package port

import "context"

// SpinGuard 是转盘冷却的出站端口。TryAcquire 对 (user, restaurant)
// 做一次 check-and-set：冷却窗口内返回 false，成功占用返回 true。
// 检查和占用必须是单次原子操作。
type SpinGuard interface {
	TryAcquire(ctx context.Context, userID, restaurantID string) (bool, error)
}
