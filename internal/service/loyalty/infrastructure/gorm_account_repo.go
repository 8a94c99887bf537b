// internal/service/loyalty/infrastructure/gorm_account_repo.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"restrohub/internal/service/loyalty/domain"
)

// deltaMaxRetries 是账本事务在存储争用下的内部重试上限，
// 用尽后向调用方暴露 ErrTransient。
const deltaMaxRetries = 3

// GormAccountRepository 是 domain.AccountRepository 的 GORM 实现。
// 账户聚合分散在 loyalty_accounts / restaurant_points / referral_codes /
// referral_edges / visited_restaurants / loyalty_history 六张表上。
type GormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Get 装配账户快照。账户行不存在时返回零值默认账户（惰性创建，
// 真正落库推迟到第一次 ApplyDelta）。
func (r *GormAccountRepository) Get(ctx context.Context, userID string) (*domain.Account, error) {
	var m LoyaltyAccountModel
	err := r.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.assemble(ctx, domain.NewAccount(userID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "load loyalty account")
	}
	return r.assemble(ctx, toDomainAccount(&m))
}

// assemble 把分表的关联数据挂到聚合上。
func (r *GormAccountRepository) assemble(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	db := r.db.WithContext(ctx)

	var points []RestaurantPointsModel
	if err := db.Find(&points, "user_id = ?", acc.UserID).Error; err != nil {
		return nil, errors.Wrap(err, "load restaurant points")
	}
	for _, p := range points {
		acc.RestaurantPoints[p.RestaurantID] = p.Points
	}

	var codes []ReferralCodeModel
	if err := db.Find(&codes, "user_id = ?", acc.UserID).Error; err != nil {
		return nil, errors.Wrap(err, "load referral codes")
	}
	for _, c := range codes {
		acc.ReferralCodes = append(acc.ReferralCodes, domain.ReferralCode{RestaurantID: c.RestaurantID, Code: c.Code})
	}

	var edges []ReferralEdgeModel
	if err := db.Order("created_at").Find(&edges, "referrer_user_id = ?", acc.UserID).Error; err != nil {
		return nil, errors.Wrap(err, "load referral edges")
	}
	for _, e := range edges {
		acc.ReferralsMade = append(acc.ReferralsMade, domain.ReferralEdge{
			RestaurantID:   e.RestaurantID,
			ReferredUserID: e.ReferredUserID,
			CreatedAt:      e.CreatedAt,
		})
	}

	var visited []VisitedRestaurantModel
	if err := db.Find(&visited, "user_id = ?", acc.UserID).Error; err != nil {
		return nil, errors.Wrap(err, "load visited restaurants")
	}
	for _, v := range visited {
		acc.VisitedRestaurants = append(acc.VisitedRestaurants, v.RestaurantID)
	}

	if err := db.Model(&HistoryEntryModel{}).
		Where("user_id = ? AND kind = ?", acc.UserID, domain.HistorySpin).
		Count(&acc.SpinCount).Error; err != nil {
		return nil, errors.Wrap(err, "count spin history")
	}

	return acc, nil
}

// ApplyDelta 是账本的变更入口。整个 读-改-写 在一个数据库事务里完成：
// 数值字段走 SQL 侧自增（两个并发增量都会生效，不存在丢失更新），
// tier 用事务内提交后的 total_points 重新推导，历史条目按行插入。
// 死锁/锁超时会在内部重试，业务性拒绝（余额不足）立即返回。
func (r *GormAccountRepository) ApplyDelta(ctx context.Context, userID string, delta domain.Delta) (*domain.Account, error) {
	var lastErr error
	for attempt := 0; attempt < deltaMaxRetries; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return applyDeltaTx(tx, userID, delta)
		})
		if err == nil {
			return r.Get(ctx, userID)
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return nil, errors.Wrapf(domain.ErrTransient, "apply delta for %s: %v", userID, lastErr)
}

// applyDeltaTx 是事务体。所有输入都通过参数传入，不闭包捕获外部可变状态。
func applyDeltaTx(tx *gorm.DB, userID string, delta domain.Delta) error {
	// 账户行惰性落库：不存在则以零值插入，存在则无操作。
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LoyaltyAccountModel{UserID: userID, Tier: string(domain.TierBronze)}).Error; err != nil {
		return errors.Wrap(err, "ensure account row")
	}

	if delta.TotalPoints != 0 {
		// 守卫条件放进 WHERE，检查与自增是同一条语句
		res := tx.Model(&LoyaltyAccountModel{}).
			Where("user_id = ? AND total_points + ? >= 0", userID, delta.TotalPoints).
			Update("total_points", gorm.Expr("total_points + ?", delta.TotalPoints))
		if res.Error != nil {
			return errors.Wrap(res.Error, "increment total points")
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientBalance
		}
	}

	if delta.SpinPoints != 0 {
		if err := tx.Model(&LoyaltyAccountModel{}).Where("user_id = ?", userID).
			Update("spin_points", gorm.Expr("spin_points + ?", delta.SpinPoints)).Error; err != nil {
			return errors.Wrap(err, "increment spin points")
		}
	}
	if delta.SpendPoints != 0 {
		if err := tx.Model(&LoyaltyAccountModel{}).Where("user_id = ?", userID).
			Update("spend_points", gorm.Expr("spend_points + ?", delta.SpendPoints)).Error; err != nil {
			return errors.Wrap(err, "increment spend points")
		}
	}

	switch {
	case delta.ResetPunches:
		if err := tx.Model(&LoyaltyAccountModel{}).Where("user_id = ?", userID).
			Update("punches", 0).Error; err != nil {
			return errors.Wrap(err, "reset punches")
		}
	case delta.Punches != 0:
		res := tx.Model(&LoyaltyAccountModel{}).
			Where("user_id = ? AND punches + ? >= 0", userID, delta.Punches).
			Update("punches", gorm.Expr("punches + ?", delta.Punches))
		if res.Error != nil {
			return errors.Wrap(res.Error, "increment punches")
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientPunches
		}
	}

	// 餐厅子余额与 total_points 同步变更
	if delta.RestaurantID != "" && delta.TotalPoints != 0 {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "restaurant_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"points": gorm.Expr("points + ?", delta.TotalPoints),
			}),
		}).Create(&RestaurantPointsModel{
			UserID:       userID,
			RestaurantID: delta.RestaurantID,
			Points:       delta.TotalPoints,
		}).Error; err != nil {
			return errors.Wrap(err, "upsert restaurant points")
		}
	}

	// tier 永远从事务内的权威总分重新推导，不用调用方的预读快照。
	var committed LoyaltyAccountModel
	if err := tx.Select("total_points").First(&committed, "user_id = ?", userID).Error; err != nil {
		return errors.Wrap(err, "reload committed total")
	}
	if err := tx.Model(&LoyaltyAccountModel{}).Where("user_id = ?", userID).
		Update("tier", string(domain.TierFor(committed.TotalPoints))).Error; err != nil {
		return errors.Wrap(err, "recompute tier")
	}

	// 历史是插入式追加，和数值自增互不影响
	for _, e := range delta.History {
		row := historyModelFromDomain(userID, e)
		if err := tx.Create(&row).Error; err != nil {
			return errors.Wrap(err, "append history entry")
		}
	}

	return nil
}

// AppendHistory 只追加历史，供迁移任务逐账户写入。
func (r *GormAccountRepository) AppendHistory(ctx context.Context, userID string, entries ...domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]HistoryEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyModelFromDomain(userID, e))
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(&rows).Error, "append history")
}

// EnsureReferralCode 返回已有的码或落库新码，并发时先写者胜。
func (r *GormAccountRepository) EnsureReferralCode(ctx context.Context, userID, restaurantID, code string) (string, error) {
	db := r.db.WithContext(ctx)

	var existing ReferralCodeModel
	err := db.First(&existing, "user_id = ? AND restaurant_id = ?", userID, restaurantID).Error
	if err == nil {
		return existing.Code, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errors.Wrap(err, "lookup referral code")
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ReferralCodeModel{
		Code:         code,
		UserID:       userID,
		RestaurantID: restaurantID,
		CreatedAt:    time.Now().UTC(),
	})
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "create referral code")
	}
	if res.RowsAffected == 0 {
		// 并发创建输给了别人，读回胜者的码
		if err := db.First(&existing, "user_id = ? AND restaurant_id = ?", userID, restaurantID).Error; err != nil {
			return "", errors.Wrap(err, "reload referral code after conflict")
		}
		return existing.Code, nil
	}
	return code, nil
}

// FindByReferralCode 按 (code, restaurant) 定位推荐人账户。
func (r *GormAccountRepository) FindByReferralCode(ctx context.Context, code, restaurantID string) (*domain.Account, error) {
	var m ReferralCodeModel
	err := r.db.WithContext(ctx).First(&m, "code = ? AND restaurant_id = ?", code, restaurantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidReferralCode
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup referral code owner")
	}
	return r.Get(ctx, m.UserID)
}

// SetReferredBy 是一次性写入的 check-and-set：检查和写入是同一条
// UPDATE，WHERE referred_by_user IS NULL 保证重试不会二次生效。
func (r *GormAccountRepository) SetReferredBy(ctx context.Context, userID string, ref domain.ReferredBy) error {
	db := r.db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LoyaltyAccountModel{UserID: userID, Tier: string(domain.TierBronze)}).Error; err != nil {
		return errors.Wrap(err, "ensure account row")
	}

	res := db.Model(&LoyaltyAccountModel{}).
		Where("user_id = ? AND referred_by_user IS NULL", userID).
		Updates(map[string]interface{}{
			"referred_by_restaurant": ref.RestaurantID,
			"referred_by_user":       ref.ReferrerUserID,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "set referred_by")
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyReferred
	}
	return nil
}

// SetPhoneNumber 记录通知号码，后写覆盖先写。
func (r *GormAccountRepository) SetPhoneNumber(ctx context.Context, userID, phoneNumber string) error {
	db := r.db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LoyaltyAccountModel{UserID: userID, Tier: string(domain.TierBronze)}).Error; err != nil {
		return errors.Wrap(err, "ensure account row")
	}

	return errors.Wrap(db.Model(&LoyaltyAccountModel{}).
		Where("user_id = ?", userID).
		Update("phone_number", phoneNumber).Error, "set phone number")
}

// AddReferralEdge 记录推荐边，唯一索引把重复插入变成无操作。
func (r *GormAccountRepository) AddReferralEdge(ctx context.Context, referrerID, restaurantID, referredID string) error {
	return errors.Wrap(r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ReferralEdgeModel{
			ReferrerUserID: referrerID,
			RestaurantID:   restaurantID,
			ReferredUserID: referredID,
			CreatedAt:      time.Now().UTC(),
		}).Error, "add referral edge")
}

// AddVisitedRestaurant 并集插入。
func (r *GormAccountRepository) AddVisitedRestaurant(ctx context.Context, userID, restaurantID string) error {
	return errors.Wrap(r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&VisitedRestaurantModel{
			UserID:       userID,
			RestaurantID: restaurantID,
			CreatedAt:    time.Now().UTC(),
		}).Error, "add visited restaurant")
}

// ForEachRestaurantAccount 遍历该餐厅下有积分记录的账户。
// 小租户规模下全表扫描是设计内的选择。
func (r *GormAccountRepository) ForEachRestaurantAccount(ctx context.Context, restaurantID string, fn func(*domain.Account) error) error {
	var rows []RestaurantPointsModel
	if err := r.db.WithContext(ctx).
		Find(&rows, "restaurant_id = ? AND points > 0", restaurantID).Error; err != nil {
		return errors.Wrap(err, "scan restaurant accounts")
	}
	for _, row := range rows {
		acc, err := r.Get(ctx, row.UserID)
		if err != nil {
			return errors.Wrapf(err, "load account %s", row.UserID)
		}
		if err := fn(acc); err != nil {
			return err
		}
	}
	return nil
}
