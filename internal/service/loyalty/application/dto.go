// internal/service/loyalty/application/dto.go
package application

import "time"

// BalanceResult 是 getBalance 的返回快照。
type BalanceResult struct {
	UserID           string           `json:"userId"`
	TotalPoints      int64            `json:"totalPoints"`
	SpinPoints       int64            `json:"spinPoints"`
	SpendPoints      int64            `json:"spendPoints"`
	Punches          int64            `json:"punches"`
	Tier             string           `json:"tier"`
	RestaurantPoints map[string]int64 `json:"restaurantPoints"`
	ReferralCodes    map[string]string `json:"referralCodes"`
}

// ClaimRequest 是领取奖励的入参。FromSpin 标记这次领取来自转盘事件。
// PhoneNumber 来自领取表单，用于后续通知投递，可空。
type ClaimRequest struct {
	UserID       string
	RestaurantID string
	Offer        string
	SpendAmount  float64
	FromSpin     bool
	PhoneNumber  string
}

// ClaimResult 汇总一次成功领取的全部产出。
type ClaimResult struct {
	CouponCode   string    `json:"couponCode"`
	Offer        string    `json:"offer"`
	ExpiryDate   time.Time `json:"expiryDate"`
	SpendPoints  int64     `json:"spendPoints"`
	SpinPoints   int64     `json:"spinPoints"`
	TotalPoints  int64     `json:"totalPoints"`
	Tier         string    `json:"tier"`
	Punches      int64     `json:"punches"`
	NextOffer    string    `json:"nextOffer,omitempty"`
	PointsToNext int64     `json:"pointsToNext,omitempty"`
}

// RedeemPointsResult 是积分兑换折扣的返回。
type RedeemPointsResult struct {
	Reward          string `json:"reward"`
	RemainingPoints int64  `json:"remainingPoints"`
	Tier            string `json:"tier"`
}

// PunchCardResult 是打孔卡兑换的返回。
type PunchCardResult struct {
	Reward           string `json:"reward"`
	RemainingPunches int64  `json:"remainingPunches"`
}

// ReferralCodeResult 携带推荐码和可分享的落地链接。
type ReferralCodeResult struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

// ReferralResult 汇总一次推荐的双边发放。
type ReferralResult struct {
	ReferrerUserID string `json:"referrerUserId"`
	ReferredUserID string `json:"referredUserId"`
	ReferrerReward string `json:"referrerReward"`
	ReferredReward string `json:"referredReward"`
}

// TrackResult 是消费/转盘跟踪端点的返回。
type TrackResult struct {
	PointsEarned int64  `json:"pointsEarned"`
	TotalPoints  int64  `json:"totalPoints"`
	Tier         string `json:"tier"`
}

// RegisterRestaurantRequest 是管理端注册餐厅的入参。
// Thresholds 沿用 "1000:20%,2000:30%" 的管理端文本格式，可空。
type RegisterRestaurantRequest struct {
	RestaurantID        string
	Name                string
	Offers              []string
	PointsPerRupee      float64
	SpinPointsPerSpin   int64
	CouponExpiryDays    int
	MaxReferralsPerUser int
	Thresholds          string
	ClaimRule           string
}

// MigrationReport 是一次阈值迁移扫描的汇总。
type MigrationReport struct {
	RestaurantID    string `json:"restaurantId"`
	AccountsScanned int    `json:"accountsScanned"`
	Retroactive     int    `json:"retroactive"`
	NextTier        int    `json:"nextTier"`
	Failures        int    `json:"failures"`
}
