// internal/service/loyalty/infrastructure/mapper_test.go
package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"restrohub/internal/service/loyalty/domain"
)

func TestToDomainSnapshot(t *testing.T) {
	createdAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	row := SettingsHistoryModel{
		RestaurantID:     "rest-1",
		PointsPerRupee:   1.5,
		RewardThresholds: "1000:20%,2000:30%",
		CreatedAt:        createdAt,
	}

	snap := toDomainSnapshot(&row)
	assert.Equal(t, 1.5, snap.PointsPerRupee)
	// 快照原样携带写入时的编码串
	assert.Equal(t, "1000:20%,2000:30%", snap.RewardThresholds)
	assert.Equal(t, createdAt, snap.CreatedAt)

	// 编码串仍可按需要解析回阈值表
	th, err := domain.ParseThresholds(snap.RewardThresholds)
	assert.NoError(t, err)
	assert.Equal(t, "20%", th[1000])
}
