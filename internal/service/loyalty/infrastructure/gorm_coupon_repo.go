// internal/service/loyalty/infrastructure/gorm_coupon_repo.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"restrohub/internal/service/loyalty/domain"
)

// GormCouponRepository 是 domain.CouponRepository 的 GORM 实现。
type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	m := toCouponModel(coupon)
	return errors.Wrap(r.db.WithContext(ctx).Create(&m).Error, "create coupon")
}

func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var m CouponModel
	err := r.db.WithContext(ctx).First(&m, "coupon_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load coupon")
	}
	return toDomainCoupon(&m), nil
}

// Redeem 在一个事务里重新校验三个守卫并翻转 is_used。
// 翻转语句带 WHERE is_used = 0，并发兑换同一张券时恰好一个成功。
func (r *GormCouponRepository) Redeem(ctx context.Context, code, userID string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m CouponModel
		err := tx.First(&m, "coupon_code = ?", code).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrCouponNotFound
		}
		if err != nil {
			return errors.Wrap(err, "load coupon for redeem")
		}

		// 事务内以存储中的行为准重新校验，不信任调用方的预读
		if err := toDomainCoupon(&m).CanRedeem(userID, now); err != nil {
			return err
		}

		res := tx.Model(&CouponModel{}).
			Where("coupon_code = ? AND is_used = ?", code, false).
			Updates(map[string]interface{}{"is_used": true, "redeemed_at": now.UTC()})
		if res.Error != nil {
			return errors.Wrap(res.Error, "mark coupon used")
		}
		if res.RowsAffected == 0 {
			return domain.ErrCouponAlreadyUsed
		}
		return nil
	})
}

func (r *GormCouponRepository) Delete(ctx context.Context, code string) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Delete(&CouponModel{}, "coupon_code = ?", code).Error, "delete coupon")
}

func (r *GormCouponRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Coupon, error) {
	var models []CouponModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").
		Find(&models, "user_id = ?", userID).Error; err != nil {
		return nil, errors.Wrap(err, "list coupons by user")
	}
	coupons := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		coupons = append(coupons, toDomainCoupon(&models[i]))
	}
	return coupons, nil
}

func (r *GormCouponRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]*domain.Coupon, error) {
	var models []CouponModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").
		Find(&models, "restaurant_id = ?", restaurantID).Error; err != nil {
		return nil, errors.Wrap(err, "list coupons by restaurant")
	}
	coupons := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		coupons = append(coupons, toDomainCoupon(&models[i]))
	}
	return coupons, nil
}

func (r *GormCouponRepository) UpdateExpiry(ctx context.Context, code string, expiry time.Time) error {
	res := r.db.WithContext(ctx).Model(&CouponModel{}).
		Where("coupon_code = ?", code).
		Update("expiry_date", expiry.UTC())
	if res.Error != nil {
		return errors.Wrap(res.Error, "update coupon expiry")
	}
	if res.RowsAffected == 0 {
		return domain.ErrCouponNotFound
	}
	return nil
}
