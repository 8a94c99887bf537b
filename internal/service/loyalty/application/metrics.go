// internal/service/loyalty/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ledgerMutations 按操作维度统计账本变更结果。
	ledgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restrohub",
		Subsystem: "loyalty",
		Name:      "ledger_mutations_total",
		Help:      "Total loyalty ledger delta applications",
	}, []string{"op", "status"})

	// claimOutcomes 统计领取流程的终态。
	claimOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restrohub",
		Subsystem: "loyalty",
		Name:      "claim_outcomes_total",
		Help:      "Total reward claim outcomes",
	}, []string{"status"})

	// couponRedemptions 统计券兑换的终态（won / already_used / expired / ...）。
	couponRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restrohub",
		Subsystem: "loyalty",
		Name:      "coupon_redemptions_total",
		Help:      "Total coupon redemption attempts",
	}, []string{"status"})

	// migrationDuration 记录一次阈值迁移扫描的耗时。
	migrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "restrohub",
		Subsystem: "loyalty",
		Name:      "threshold_migration_seconds",
		Help:      "Duration of threshold migration scans",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
