// internal/service/loyalty/domain/settings.go
package domain

import (
	"strconv"
	"time"
)

// RewardType 标识推荐奖励的发放方式。points 走积分账本；
// coupon/item 不动积分，只在 redemption_history 里签发一个带码的条目。
type RewardType string

const (
	RewardPoints RewardType = "points"
	RewardCoupon RewardType = "coupon"
	RewardItem   RewardType = "item"
)

// RewardSpec 描述一份推荐奖励。Value 对 points 类型是积分数，
// 对 coupon/item 类型是奖励文案。
type RewardSpec struct {
	Type  RewardType
	Value string
}

// PointsValue 把 points 类型的 Value 解析为整数，解析失败按 0 处理。
func (r RewardSpec) PointsValue() int64 {
	v, err := strconv.ParseInt(r.Value, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ReferralRewards 是餐厅配置的推荐双方奖励。未配置时推荐功能整体关闭。
type ReferralRewards struct {
	Referrer RewardSpec
	Referred RewardSpec
}

// SettingsSnapshot 是 loyalty_settings 的一条历史快照，只追加，永不截断。
type SettingsSnapshot struct {
	PointsPerRupee   float64
	RewardThresholds string // 存储格式，见 Thresholds.Encode
	CreatedAt        time.Time
}

// Settings 是一家餐厅的忠诚度配置。核心只读取这些字段；
// 写路径只有注册餐厅和阈值迁移两条，都走 SettingsRepository。
type Settings struct {
	RestaurantID string
	Name         string
	Offers       []string

	PointsPerRupee      float64
	SpinPointsPerSpin   int64
	CouponExpiryDays    int
	MaxReferralsPerUser int
	Thresholds          Thresholds

	ReferralRewards *ReferralRewards

	// ClaimRule 是可选的 CEL 表达式，对单次领取做资格判断。
	// 空串表示不启用规则。
	ClaimRule string

	UpdatedAt time.Time
}

// HasOffer 校验 offer 是否在注册的奖励列表里。
func (s *Settings) HasOffer(offer string) bool {
	for _, o := range s.Offers {
		if o == offer {
			return true
		}
	}
	return false
}

// ClaimFact 是领取规则评估时可见的事实集合，字段名即 CEL 变量名。
type ClaimFact struct {
	Offer       string  `json:"offer"`
	SpendAmount float64 `json:"spend_amount"`
	TotalPoints int64   `json:"total_points"`
	Tier        string  `json:"tier"`
	SpinCount   int64   `json:"spin_count"`
}
