// internal/service/loyalty/domain/coupon.go
package domain

import "time"

// Coupon 是一张单次使用、餐厅范围、有有效期的奖励券。
// 状态机只有一条转换：Unused -> Used（终态）。过期但未使用的券仍然可读，
// 只是兑换会失败。
type Coupon struct {
	CouponCode   string // 签发时生成，不可变
	UserID       string // 持有者，不可变
	RestaurantID string // 范围，不可变
	Offer        string // 奖励文案，不可变
	ExpiryDate   time.Time
	IsUsed       bool
	RedeemedAt   *time.Time
	CreatedAt    time.Time
}

// CanRedeem 按固定顺序评估三个兑换守卫。注意：这只是快速失败的预检，
// 仓储层必须在执行状态翻转的同一个事务里重新校验一遍——
// 在预检和写入之间用过期快照做判断是已知的正确性缺陷。
func (c *Coupon) CanRedeem(userID string, now time.Time) error {
	if c.UserID != userID {
		return ErrCouponNotOwned
	}
	if c.IsUsed {
		return ErrCouponAlreadyUsed
	}
	if c.Expired(now) {
		return ErrCouponExpired
	}
	return nil
}

// Expired 按自然日比较：有效期当天仍然可用。
func (c *Coupon) Expired(now time.Time) bool {
	y1, m1, d1 := now.UTC().Date()
	y2, m2, d2 := c.ExpiryDate.UTC().Date()
	today := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return today.After(expiry)
}
