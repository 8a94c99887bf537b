// internal/service/loyalty/domain/account.go
package domain

import "time"

// HistoryKind 区分账户上四条只追加的历史序列。
type HistoryKind string

const (
	HistorySpin       HistoryKind = "spin"
	HistorySpend      HistoryKind = "spend"
	HistoryClaim      HistoryKind = "claim"
	HistoryRedemption HistoryKind = "redemption"
)

// 迁移任务写入 redemption_history 时使用的条目类型。
const (
	EntryRetroactive = "retroactive"
	EntryNextTier    = "next_tier"
)

// HistoryEntry 是历史序列中的一条记录。历史追加与数值增量彼此独立：
// 即使数值自增发生竞争，历史条目也必须全部落库（插入式追加，绝不整体覆盖数组）。
type HistoryEntry struct {
	Kind         HistoryKind
	RestaurantID string
	Reward       string
	CouponCode   string
	Points       int64
	Amount       float64
	EntryType    string // ""、retroactive 或 next_tier
	CreatedAt    time.Time
}

// ReferralCode 是用户在某家餐厅下的专属推荐码，惰性生成，一旦创建不可变。
type ReferralCode struct {
	RestaurantID string
	Code         string
}

// ReferredBy 记录"我被谁推荐"。一次性写入：第二次推荐必须被拒绝。
type ReferredBy struct {
	RestaurantID   string
	ReferrerUserID string
}

// ReferralEdge 记录"我推荐了谁"，用于执行每餐厅的推荐上限。
type ReferralEdge struct {
	RestaurantID   string
	ReferredUserID string
	CreatedAt      time.Time
}

// Account 是忠诚度账户聚合根，每个用户全局一份（跨餐厅共享 total_points）。
// 生命周期：首次读取时以零值惰性创建；从不硬删除；所有变更都是合并而非替换。
type Account struct {
	UserID      string
	TotalPoints int64
	SpinPoints  int64
	SpendPoints int64
	Punches     int64
	Tier        Tier

	// PhoneNumber 是通知投递的 WhatsApp/SMS 号码，领取表单提交时采集，
	// 后写覆盖先写。空串表示用户还没留过号码。
	PhoneNumber string

	// 按餐厅维度的子余额，餐厅范围的积分变更与 total_points 同步更新。
	RestaurantPoints map[string]int64

	ReferralCodes      []ReferralCode
	ReferredBy         *ReferredBy
	ReferralsMade      []ReferralEdge
	VisitedRestaurants []string

	// SpinCount 是 spin_history 的条目数，转盘奖励计算依赖它。
	SpinCount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount 是账户的唯一构造入口，所有默认值集中在这里，
// 避免零散的默认值字面量在代码库里漂移。
func NewAccount(userID string) *Account {
	now := time.Now().UTC()
	return &Account{
		UserID:           userID,
		Tier:             TierBronze,
		RestaurantPoints: map[string]int64{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ReferralCodeFor 返回该餐厅下已有的推荐码，没有则返回空串。
func (a *Account) ReferralCodeFor(restaurantID string) string {
	for _, rc := range a.ReferralCodes {
		if rc.RestaurantID == restaurantID {
			return rc.Code
		}
	}
	return ""
}

// ReferralsMadeFor 统计该餐厅下已完成的推荐数。
func (a *Account) ReferralsMadeFor(restaurantID string) int {
	n := 0
	for _, e := range a.ReferralsMade {
		if e.RestaurantID == restaurantID {
			n++
		}
	}
	return n
}

// HasReferred 判断是否已经推荐过某个用户（同一餐厅内去重）。
func (a *Account) HasReferred(restaurantID, referredUserID string) bool {
	for _, e := range a.ReferralsMade {
		if e.RestaurantID == restaurantID && e.ReferredUserID == referredUserID {
			return true
		}
	}
	return false
}

// Delta 描述一次账本变更。所有数值都是带符号增量；负增量不得把
// total_points 压到 0 以下，仓储层在同一个原子单元里校验并拒绝。
type Delta struct {
	TotalPoints int64
	SpinPoints  int64
	SpendPoints int64
	Punches     int64

	// ResetPunches 为 true 时 punches 归零（打孔卡兑换），优先于 Punches 增量。
	ResetPunches bool

	// RestaurantID 非空时，TotalPoints 的增量同步作用到该餐厅的子余额。
	RestaurantID string

	// History 与数值增量一起提交，但彼此独立：历史是插入，数值是自增。
	History []HistoryEntry
}

// IsZero 表示这次变更没有任何数值效果（可能仍有历史追加）。
func (d Delta) IsZero() bool {
	return d.TotalPoints == 0 && d.SpinPoints == 0 && d.SpendPoints == 0 &&
		d.Punches == 0 && !d.ResetPunches
}
