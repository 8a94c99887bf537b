// internal/service/loyalty/infrastructure/mapper.go
package infrastructure

import (
	"strings"

	"restrohub/internal/service/loyalty/domain"
)

// --- 类型转换函数 ---
// 将数据库模型转换为领域模型。账户聚合分散在多张表里，
// 由仓储负责装配，这里只做逐表的字段搬运。

func toDomainAccount(m *LoyaltyAccountModel) *domain.Account {
	acc := domain.NewAccount(m.UserID)
	acc.TotalPoints = m.TotalPoints
	acc.SpinPoints = m.SpinPoints
	acc.SpendPoints = m.SpendPoints
	acc.Punches = m.Punches
	acc.Tier = domain.Tier(m.Tier)
	acc.PhoneNumber = m.PhoneNumber
	acc.CreatedAt = m.CreatedAt
	acc.UpdatedAt = m.UpdatedAt
	if m.ReferredByRestaurant != nil && m.ReferredByUser != nil {
		acc.ReferredBy = &domain.ReferredBy{
			RestaurantID:   *m.ReferredByRestaurant,
			ReferrerUserID: *m.ReferredByUser,
		}
	}
	return acc
}

func toDomainCoupon(m *CouponModel) *domain.Coupon {
	return &domain.Coupon{
		CouponCode:   m.CouponCode,
		UserID:       m.UserID,
		RestaurantID: m.RestaurantID,
		Offer:        m.Offer,
		ExpiryDate:   m.ExpiryDate,
		IsUsed:       m.IsUsed,
		RedeemedAt:   m.RedeemedAt,
		CreatedAt:    m.CreatedAt,
	}
}

func toCouponModel(c *domain.Coupon) *CouponModel {
	return &CouponModel{
		CouponCode:   c.CouponCode,
		UserID:       c.UserID,
		RestaurantID: c.RestaurantID,
		Offer:        c.Offer,
		ExpiryDate:   c.ExpiryDate,
		IsUsed:       c.IsUsed,
		RedeemedAt:   c.RedeemedAt,
		CreatedAt:    c.CreatedAt,
	}
}

func toDomainSettings(m *LoyaltySettingsModel) (*domain.Settings, error) {
	thresholds := domain.Thresholds{}
	if m.RewardThresholds != "" {
		parsed, err := domain.ParseThresholds(m.RewardThresholds)
		if err != nil {
			return nil, err
		}
		thresholds = parsed
	}

	s := &domain.Settings{
		RestaurantID:        m.RestaurantID,
		Name:                m.Name,
		Offers:              splitOffers(m.Offers),
		PointsPerRupee:      m.PointsPerRupee,
		SpinPointsPerSpin:   m.SpinPointsPerSpin,
		CouponExpiryDays:    m.CouponExpiryDays,
		MaxReferralsPerUser: m.MaxReferralsPerUser,
		Thresholds:          thresholds,
		ClaimRule:           m.ClaimRule,
		UpdatedAt:           m.UpdatedAt,
	}
	if m.ReferrerRewardType != "" && m.ReferredRewardType != "" {
		s.ReferralRewards = &domain.ReferralRewards{
			Referrer: domain.RewardSpec{Type: domain.RewardType(m.ReferrerRewardType), Value: m.ReferrerRewardValue},
			Referred: domain.RewardSpec{Type: domain.RewardType(m.ReferredRewardType), Value: m.ReferredRewardValue},
		}
	}
	return s, nil
}

func toSettingsModel(s *domain.Settings) *LoyaltySettingsModel {
	m := &LoyaltySettingsModel{
		RestaurantID:        s.RestaurantID,
		Name:                s.Name,
		Offers:              joinOffers(s.Offers),
		PointsPerRupee:      s.PointsPerRupee,
		SpinPointsPerSpin:   s.SpinPointsPerSpin,
		CouponExpiryDays:    s.CouponExpiryDays,
		MaxReferralsPerUser: s.MaxReferralsPerUser,
		RewardThresholds:    s.Thresholds.Encode(),
		ClaimRule:           s.ClaimRule,
	}
	if s.ReferralRewards != nil {
		m.ReferrerRewardType = string(s.ReferralRewards.Referrer.Type)
		m.ReferrerRewardValue = s.ReferralRewards.Referrer.Value
		m.ReferredRewardType = string(s.ReferralRewards.Referred.Type)
		m.ReferredRewardValue = s.ReferralRewards.Referred.Value
	}
	return m
}

// 历史快照原样携带写入时的编码串，读取时不再解析。
func toDomainSnapshot(m *SettingsHistoryModel) domain.SettingsSnapshot {
	return domain.SettingsSnapshot{
		PointsPerRupee:   m.PointsPerRupee,
		RewardThresholds: m.RewardThresholds,
		CreatedAt:        m.CreatedAt,
	}
}

// offers 在表里按行存储，读写都走这两个函数。
func splitOffers(raw string) []string {
	if raw == "" {
		return nil
	}
	var offers []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			offers = append(offers, line)
		}
	}
	return offers
}

func joinOffers(offers []string) string {
	return strings.Join(offers, "\n")
}
