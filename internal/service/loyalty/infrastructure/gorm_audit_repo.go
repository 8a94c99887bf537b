// internal/service/loyalty/infrastructure/gorm_audit_repo.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"restrohub/internal/service/loyalty/domain"
)

// GormAuditLogRepository 只追加审计行。
type GormAuditLogRepository struct {
	db *gorm.DB
}

func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

func (r *GormAuditLogRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return errors.Wrap(err, "marshal audit details")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(&AuditLogModel{
		UserID:    entry.UserID,
		Action:    entry.Action,
		Details:   string(details),
		CreatedAt: createdAt,
	}).Error, "append audit log")
}

var _ domain.AuditLogRepository = (*GormAuditLogRepository)(nil)
var _ domain.AccountRepository = (*GormAccountRepository)(nil)
var _ domain.CouponRepository = (*GormCouponRepository)(nil)
var _ domain.SettingsRepository = (*GormSettingsRepository)(nil)
