package domain

import "errors"

// 领域层的哨兵错误。接口层通过 errors.Is 将它们映射为 HTTP 状态码，
// 基础设施层只负责用 Wrap 补充上下文，不得吞掉这些错误。
var (
	// NotFound 类
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrAccountNotFound    = errors.New("loyalty account not found")
	ErrCouponNotFound     = errors.New("coupon not found")

	// InvalidInput 类
	ErrInvalidOffer        = errors.New("offer is not registered for this restaurant")
	ErrInvalidRestaurant   = errors.New("restaurant registration requires id, name and at least one offer")
	ErrInvalidSpendAmount  = errors.New("spend amount must be non-negative")
	ErrInvalidThresholds   = errors.New("reward thresholds must be in format 'points:reward,points:reward'")
	ErrInvalidPointsValue  = errors.New("minimum 50 points required for discount")
	ErrExpiryInPast        = errors.New("expiry date must not be in the past")
	ErrReferralNotEnabled  = errors.New("referral rewards not configured for this restaurant")
	ErrInvalidReferralCode = errors.New("invalid referral code")

	// Unauthorized 类
	ErrCouponNotOwned = errors.New("coupon does not belong to this user")

	// Conflict 类
	ErrInsufficientBalance = errors.New("insufficient point balance")
	ErrInsufficientPunches = errors.New("insufficient punches, need 10 to redeem")
	ErrCouponAlreadyUsed   = errors.New("coupon already used")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrSelfReferral        = errors.New("users cannot refer themselves")
	ErrAlreadyReferred     = errors.New("user has already been referred")
	ErrReferralCapReached  = errors.New("referral cap reached for this restaurant")
	ErrSpinCooldown        = errors.New("spin cooldown in effect")
	ErrClaimNotEligible    = errors.New("claim rejected by restaurant rule")

	// Transient: 存储层争用，重试整个操作是安全的
	ErrTransient = errors.New("storage contention, retry the operation")
)
