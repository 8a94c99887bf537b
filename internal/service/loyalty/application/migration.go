// internal/service/loyalty/application/migration.go
package application

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"restrohub/internal/service/loyalty/domain"
)

// 迁移扫描的并发上限。租户规模小，限流主要是保护数据库连接池。
const migrationConcurrency = 8

// UpdateThresholds 是管理端的阈值变更入口：解析新阈值，
// 对该餐厅跑一遍迁移扫描，然后把新配置落成 current 并追加历史快照。
// 同一家餐厅同时只允许一个迁移任务，靠 ZooKeeper 锁串行化。
func (s *LoyaltyApplicationService) UpdateThresholds(ctx context.Context, restaurantID, rawThresholds string, pointsPerRupee float64) (*MigrationReport, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.UpdateThresholds")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.id", restaurantID))

	newThresholds, err := domain.ParseThresholds(rawThresholds)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.Get(ctx, restaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if pointsPerRupee <= 0 {
		pointsPerRupee = settings.PointsPerRupee
	}

	lock := s.locks.NewLock(restaurantID)
	if err := lock.Lock(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire migration lock")
		return nil, fmt.Errorf("migration already in progress or lock unavailable: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("ERROR: [Migration: %s] failed to release lock: %v", restaurantID, err)
		}
	}()

	start := time.Now()
	report := s.migrate(ctx, restaurantID, settings.Thresholds, newThresholds)
	migrationDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("migration.scanned", report.AccountsScanned),
		attribute.Int("migration.retroactive", report.Retroactive),
		attribute.Int("migration.next_tier", report.NextTier),
		attribute.Int("migration.failures", report.Failures),
	)

	// 扫描结束后才把新配置落成 current；历史快照永不截断。
	// 这一步失败必须向上暴露，已经写出的逐账户条目不回滚。
	if err := s.settingsRepo.UpdateThresholds(ctx, restaurantID, pointsPerRupee, newThresholds); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist new thresholds")
		return report, err
	}

	log.Printf("SUCCESS: [Migration: %s] scanned=%d retroactive=%d next_tier=%d failures=%d", restaurantID, report.AccountsScanned, report.Retroactive, report.NextTier, report.Failures)
	return report, nil
}

// migrate 对餐厅的全部有分账户做一次全量扫描。单个账户失败
// 只记日志并继续，绝不让一个坏账户中断整场迁移。
func (s *LoyaltyApplicationService) migrate(ctx context.Context, restaurantID string, oldThresholds, newThresholds domain.Thresholds) *MigrationReport {
	report := &MigrationReport{RestaurantID: restaurantID}

	var accounts []*domain.Account
	err := s.accountRepo.ForEachRestaurantAccount(ctx, restaurantID, func(acc *domain.Account) error {
		if acc.TotalPoints > 0 {
			accounts = append(accounts, acc)
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR: [Migration: %s] account scan failed: %v", restaurantID, err)
		report.Failures++
		return report
	}
	report.AccountsScanned = len(accounts)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(migrationConcurrency)
	for _, acc := range accounts {
		acc := acc
		g.Go(func() error {
			entries := migrationEntries(restaurantID, acc.TotalPoints, oldThresholds, newThresholds)
			if len(entries) == 0 {
				return nil
			}
			if err := s.accountRepo.AppendHistory(gctx, acc.UserID, entries...); err != nil {
				log.Printf("ERROR: [Migration: %s] history append failed for %s: %v", restaurantID, acc.UserID, err)
				mu.Lock()
				report.Failures++
				mu.Unlock()
				return nil // 继续处理其余账户
			}
			mu.Lock()
			for _, e := range entries {
				switch e.EntryType {
				case domain.EntryRetroactive:
					report.Retroactive++
				case domain.EntryNextTier:
					report.NextTier++
				}
			}
			mu.Unlock()

			for _, e := range entries {
				s.notify(gctx, &domain.NotificationEvent{
					UserID:       acc.UserID,
					RestaurantID: restaurantID,
					PhoneNumber:  acc.PhoneNumber,
					Kind:         "threshold_migration",
					Message:      migrationMessage(e),
				})
			}
			return nil
		})
	}
	_ = g.Wait() // 单账户错误都已就地消化，这里不会有聚合错误

	return report
}

// migrationEntries 计算一个账户在阈值变更下需要追加的历史条目。
// retroactive: 旧阈值下的当前奖励在新阈值下变了（包括变没），记录旧奖励。
// next_tier: 总分已越过旧表的最高档，而新表在总分之上又出现了更高档。
func migrationEntries(restaurantID string, total int64, oldThresholds, newThresholds domain.Thresholds) []domain.HistoryEntry {
	var entries []domain.HistoryEntry
	now := time.Now().UTC()

	oldReward, hadOld := oldThresholds.CurrentReward(total)
	newReward, hasNew := newThresholds.CurrentReward(total)
	if hadOld && (!hasNew || oldReward != newReward) {
		entries = append(entries, domain.HistoryEntry{
			Kind:         domain.HistoryRedemption,
			RestaurantID: restaurantID,
			Reward:       oldReward,
			EntryType:    domain.EntryRetroactive,
			CreatedAt:    now,
		})
	}

	if oldMax, ok := oldThresholds.Max(); ok && total > oldMax {
		if _, nextReward, ok := newThresholds.NextReward(total); ok {
			entries = append(entries, domain.HistoryEntry{
				Kind:         domain.HistoryRedemption,
				RestaurantID: restaurantID,
				Reward:       nextReward,
				EntryType:    domain.EntryNextTier,
				CreatedAt:    now,
			})
		}
	}
	return entries
}

func migrationMessage(e domain.HistoryEntry) string {
	if e.EntryType == domain.EntryNextTier {
		return fmt.Sprintf("Good news! A new reward %q is now within reach.", e.Reward)
	}
	return fmt.Sprintf("Reward thresholds changed. Your previously unlocked reward %q has been recorded retroactively.", e.Reward)
}
