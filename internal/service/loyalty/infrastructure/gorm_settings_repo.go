// internal/service/loyalty/infrastructure/gorm_settings_repo.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"restrohub/internal/service/loyalty/domain"
)

// GormSettingsRepository 是 domain.SettingsRepository 的 GORM 实现。
// 读路径对上层充当餐厅配置提供方，写路径只有注册和阈值迁移两个。
type GormSettingsRepository struct {
	db *gorm.DB
}

func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

func (r *GormSettingsRepository) Get(ctx context.Context, restaurantID string) (*domain.Settings, error) {
	var m LoyaltySettingsModel
	err := r.db.WithContext(ctx).First(&m, "restaurant_id = ?", restaurantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRestaurantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load loyalty settings")
	}
	return toDomainSettings(&m)
}

// Create 注册餐厅，current 行和第一条历史快照在同一个事务里写入。
func (r *GormSettingsRepository) Create(ctx context.Context, settings *domain.Settings) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := toSettingsModel(settings)
		if err := tx.Create(&m).Error; err != nil {
			return errors.Wrap(err, "create loyalty settings")
		}
		return errors.Wrap(tx.Create(&SettingsHistoryModel{
			RestaurantID:     settings.RestaurantID,
			PointsPerRupee:   settings.PointsPerRupee,
			RewardThresholds: settings.Thresholds.Encode(),
			CreatedAt:        time.Now().UTC(),
		}).Error, "create settings history")
	})
}

// UpdateThresholds 把新配置写成 current 并追加历史快照。
// 历史只插入新行，旧快照永不改写。
func (r *GormSettingsRepository) UpdateThresholds(ctx context.Context, restaurantID string, pointsPerRupee float64, thresholds domain.Thresholds) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&LoyaltySettingsModel{}).
			Where("restaurant_id = ?", restaurantID).
			Updates(map[string]interface{}{
				"points_per_rupee":  pointsPerRupee,
				"reward_thresholds": thresholds.Encode(),
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update thresholds")
		}
		if res.RowsAffected == 0 {
			return domain.ErrRestaurantNotFound
		}
		return errors.Wrap(tx.Create(&SettingsHistoryModel{
			RestaurantID:     restaurantID,
			PointsPerRupee:   pointsPerRupee,
			RewardThresholds: thresholds.Encode(),
			CreatedAt:        time.Now().UTC(),
		}).Error, "append settings history")
	})
}

func (r *GormSettingsRepository) History(ctx context.Context, restaurantID string) ([]domain.SettingsSnapshot, error) {
	var rows []SettingsHistoryModel
	if err := r.db.WithContext(ctx).Order("created_at").
		Find(&rows, "restaurant_id = ?", restaurantID).Error; err != nil {
		return nil, errors.Wrap(err, "load settings history")
	}
	snapshots := make([]domain.SettingsSnapshot, 0, len(rows))
	for i := range rows {
		snapshots = append(snapshots, toDomainSnapshot(&rows[i]))
	}
	return snapshots, nil
}
