// internal/service/loyalty/domain/repository.go
package domain

import (
	"context"
	"time"
)

// AccountRepository 定义了忠诚度账户聚合的持久化接口。
// 它位于领域层，由基础设施层实现。
type AccountRepository interface {
	// Get 读取账户快照；不存在时返回零值默认账户（惰性创建，不落库）。
	Get(ctx context.Context, userID string) (*Account, error)

	// ApplyDelta 是账本的唯一变更入口：读当前值、应用增量、重推等级、
	// 追加历史、写回，对同一账户的并发变更必须表现为一个原子单元。
	// 数值字段用存储层的原子自增实现，绝不能盲读后整体覆盖。
	// 负增量会把 total_points 压到 0 以下时返回 ErrInsufficientBalance；
	// ResetPunches 之外的 punches 负增量同理返回 ErrInsufficientPunches。
	// 返回提交后的账户快照。
	ApplyDelta(ctx context.Context, userID string, delta Delta) (*Account, error)

	// AppendHistory 只追加历史，不动数值（迁移任务的逐账户写入路径）。
	AppendHistory(ctx context.Context, userID string, entries ...HistoryEntry) error

	// EnsureReferralCode 返回 (user, restaurant) 下已有的推荐码；
	// 没有则把 code 作为新码落库。并发调用收敛到同一个码（先写者胜）。
	EnsureReferralCode(ctx context.Context, userID, restaurantID, code string) (string, error)

	// FindByReferralCode 按 (code, restaurant) 定位推荐人。
	// 找不到返回 ErrInvalidReferralCode。
	FindByReferralCode(ctx context.Context, code, restaurantID string) (*Account, error)

	// SetReferredBy 是一次性写入的 check-and-set：referred_by 已存在时
	// 返回 ErrAlreadyReferred。它必须是单行原子操作——推荐流程把它
	// 放在发奖之前执行，重试才是天然幂等的。
	SetReferredBy(ctx context.Context, userID string, ref ReferredBy) error

	// AddReferralEdge 记录推荐边（referrer 侧），同一 (referrer, restaurant,
	// referred) 重复插入按无操作处理。
	AddReferralEdge(ctx context.Context, referrerID, restaurantID, referredID string) error

	// AddVisitedRestaurant 并集插入 visited_restaurants。
	AddVisitedRestaurant(ctx context.Context, userID, restaurantID string) error

	// SetPhoneNumber 记录用户的通知号码，后写覆盖先写。
	SetPhoneNumber(ctx context.Context, userID, phoneNumber string) error

	// ForEachRestaurantAccount 遍历在该餐厅有积分记录的全部账户。
	// 全表扫描是设计内的（租户规模小）；fn 返回的错误只中断当前账户，
	// 由调用方决定是否继续。
	ForEachRestaurantAccount(ctx context.Context, restaurantID string, fn func(*Account) error) error
}

// CouponRepository 定义了券存储。
type CouponRepository interface {
	Create(ctx context.Context, coupon *Coupon) error

	// FindByCode 找不到时返回 ErrCouponNotFound。
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// Redeem 在一个事务里重新校验三个守卫（归属、未用、未过期）并翻转
	// is_used。并发兑换同一张券时恰好一个调用成功，其余收到
	// ErrCouponAlreadyUsed。
	Redeem(ctx context.Context, code, userID string, now time.Time) error

	// Delete 是领取流程失败时的补偿：删掉刚签发还没被引用的券。
	Delete(ctx context.Context, code string) error

	ListByUser(ctx context.Context, userID string) ([]*Coupon, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]*Coupon, error)

	// UpdateExpiry 是管理端的有效期修正，新日期不得早于今天。
	UpdateExpiry(ctx context.Context, code string, expiry time.Time) error
}

// SettingsRepository 定义了餐厅忠诚度配置的读写。
// 读路径充当外部的 Restaurant Config Provider；写路径只有注册和迁移。
type SettingsRepository interface {
	// Get 找不到时返回 ErrRestaurantNotFound。
	Get(ctx context.Context, restaurantID string) (*Settings, error)

	// Create 注册餐厅并写入第一条历史快照。
	Create(ctx context.Context, settings *Settings) error

	// UpdateThresholds 持久化新的配置为 current，并追加一条带时间戳的
	// 历史快照（历史永不截断、永不覆盖）。
	UpdateThresholds(ctx context.Context, restaurantID string, pointsPerRupee float64, thresholds Thresholds) error

	History(ctx context.Context, restaurantID string) ([]SettingsSnapshot, error)
}

// AuditLogRepository 只追加审计记录，失败只记日志不影响主操作。
type AuditLogRepository interface {
	Append(ctx context.Context, entry AuditEntry) error
}
