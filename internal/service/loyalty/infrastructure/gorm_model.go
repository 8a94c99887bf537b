// internal/service/loyalty/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"restrohub/internal/service/loyalty/domain"
)

// LoyaltyAccountModel 对应 loyalty_accounts 表。
// tier 是派生列，只在数值事务内部由提交后的 total_points 重新计算写入。
type LoyaltyAccountModel struct {
	UserID      string `gorm:"primaryKey;size:64"`
	TotalPoints int64  `gorm:"not null;default:0"`
	SpinPoints  int64  `gorm:"not null;default:0"`
	SpendPoints int64  `gorm:"not null;default:0"`
	Punches     int64  `gorm:"not null;default:0"`
	Tier        string `gorm:"size:16;not null;default:'Bronze'"`
	PhoneNumber string `gorm:"size:32;not null;default:''"`

	// referred_by 两列一起构成一次性写入的引用，NULL 表示尚未被推荐
	ReferredByRestaurant *string `gorm:"size:64"`
	ReferredByUser       *string `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (LoyaltyAccountModel) TableName() string {
	return "loyalty_accounts"
}

// RestaurantPointsModel 是按餐厅维度的子余额，(user, restaurant) 唯一。
type RestaurantPointsModel struct {
	UserID       string `gorm:"primaryKey;size:64"`
	RestaurantID string `gorm:"primaryKey;size:64"`
	Points       int64  `gorm:"not null;default:0"`
}

func (RestaurantPointsModel) TableName() string {
	return "restaurant_points"
}

// ReferralCodeModel 对应 referral_codes 表。code 全局唯一，
// (user, restaurant) 唯一保证每家餐厅只有一个码。
type ReferralCodeModel struct {
	Code         string `gorm:"primaryKey;size:32"`
	UserID       string `gorm:"size:64;uniqueIndex:uniq_user_restaurant,priority:1"`
	RestaurantID string `gorm:"size:64;uniqueIndex:uniq_user_restaurant,priority:2"`
	CreatedAt    time.Time
}

func (ReferralCodeModel) TableName() string {
	return "referral_codes"
}

// ReferralEdgeModel 记录推荐边，唯一索引让重复插入退化为无操作。
type ReferralEdgeModel struct {
	ID             uint   `gorm:"primaryKey"`
	ReferrerUserID string `gorm:"size:64;uniqueIndex:uniq_referral_edge,priority:1"`
	RestaurantID   string `gorm:"size:64;uniqueIndex:uniq_referral_edge,priority:2"`
	ReferredUserID string `gorm:"size:64;uniqueIndex:uniq_referral_edge,priority:3"`
	CreatedAt      time.Time
}

func (ReferralEdgeModel) TableName() string {
	return "referral_edges"
}

// VisitedRestaurantModel 是 visited_restaurants 的并集存储。
type VisitedRestaurantModel struct {
	UserID       string `gorm:"primaryKey;size:64"`
	RestaurantID string `gorm:"primaryKey;size:64"`
	CreatedAt    time.Time
}

func (VisitedRestaurantModel) TableName() string {
	return "visited_restaurants"
}

// HistoryEntryModel 承载账户的四条只追加历史序列（kind 区分）。
// 追加是插入新行而不是改写数组，并发追加天然互不覆盖。
type HistoryEntryModel struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       string `gorm:"size:64;index:idx_history_user_kind,priority:1"`
	Kind         string `gorm:"size:16;index:idx_history_user_kind,priority:2"`
	RestaurantID string `gorm:"size:64;index"`
	Reward       string `gorm:"size:255"`
	CouponCode   string `gorm:"size:32"`
	Points       int64
	Amount       float64
	EntryType    string `gorm:"size:16"`
	CreatedAt    time.Time
}

func (HistoryEntryModel) TableName() string {
	return "loyalty_history"
}

// CouponModel 对应 coupons 表。is_used 的翻转是单行 CAS。
type CouponModel struct {
	CouponCode   string `gorm:"primaryKey;size:32"`
	UserID       string `gorm:"size:64;index"`
	RestaurantID string `gorm:"size:64;index"`
	Offer        string `gorm:"size:255"`
	ExpiryDate   time.Time
	IsUsed       bool `gorm:"not null;default:0"`
	RedeemedAt   *time.Time
	CreatedAt    time.Time
}

func (CouponModel) TableName() string {
	return "coupons"
}

// LoyaltySettingsModel 是餐厅忠诚度配置的 current 版本。
// reward_thresholds 以 "points:reward,..." 文本存储，读取时解析为整数键。
type LoyaltySettingsModel struct {
	RestaurantID        string `gorm:"primaryKey;size:64"`
	Name                string `gorm:"size:255"`
	Offers              string `gorm:"type:text"` // 换行分隔
	PointsPerRupee      float64
	SpinPointsPerSpin   int64 `gorm:"not null;default:10"`
	CouponExpiryDays    int   `gorm:"not null;default:30"`
	MaxReferralsPerUser int   `gorm:"not null;default:0"` // 0 = 不限
	RewardThresholds    string `gorm:"type:text"`
	ReferrerRewardType  string `gorm:"size:16"`
	ReferrerRewardValue string `gorm:"size:255"`
	ReferredRewardType  string `gorm:"size:16"`
	ReferredRewardValue string `gorm:"size:255"`
	ClaimRule           string `gorm:"type:text"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (LoyaltySettingsModel) TableName() string {
	return "loyalty_settings"
}

// SettingsHistoryModel 是配置的只追加快照，永不截断。
type SettingsHistoryModel struct {
	ID               uint   `gorm:"primaryKey"`
	RestaurantID     string `gorm:"size:64;index"`
	PointsPerRupee   float64
	RewardThresholds string `gorm:"type:text"`
	CreatedAt        time.Time
}

func (SettingsHistoryModel) TableName() string {
	return "loyalty_settings_history"
}

// AuditLogModel 对应 audit_logs 表。
type AuditLogModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:64;index"`
	Action    string `gorm:"size:64"`
	Details   string `gorm:"type:json"`
	CreatedAt time.Time
}

func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// AllModels 是 AutoMigrate 的清单。
func AllModels() []interface{} {
	return []interface{}{
		&LoyaltyAccountModel{},
		&RestaurantPointsModel{},
		&ReferralCodeModel{},
		&ReferralEdgeModel{},
		&VisitedRestaurantModel{},
		&HistoryEntryModel{},
		&CouponModel{},
		&LoyaltySettingsModel{},
		&SettingsHistoryModel{},
		&AuditLogModel{},
	}
}

// historyModelFromDomain 把领域历史条目转换成插入行。
func historyModelFromDomain(userID string, e domain.HistoryEntry) HistoryEntryModel {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return HistoryEntryModel{
		UserID:       userID,
		Kind:         string(e.Kind),
		RestaurantID: e.RestaurantID,
		Reward:       e.Reward,
		CouponCode:   e.CouponCode,
		Points:       e.Points,
		Amount:       e.Amount,
		EntryType:    e.EntryType,
		CreatedAt:    createdAt,
	}
}
