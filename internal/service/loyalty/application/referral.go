// internal/service/loyalty/application/referral.go
package application

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"restrohub/internal/service/loyalty/domain"
)

// ProcessReferral 处理一次推荐：定位推荐人，跑完守卫，双边发奖，落边。
// referred_by 的 check-and-set 排在发奖之前，网络重试走到这里会收到
// ErrAlreadyReferred 直接短路，天然幂等，绝不二次发奖。
func (s *LoyaltyApplicationService) ProcessReferral(ctx context.Context, referredUserID, code, restaurantID string) (*ReferralResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.ProcessReferral")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", referredUserID),
		attribute.String("restaurant.id", restaurantID),
		attribute.String("referral.code", code),
	)

	settings, err := s.settingsRepo.Get(ctx, restaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if settings.ReferralRewards == nil {
		return nil, domain.ErrReferralNotEnabled
	}

	referrer, err := s.accountRepo.FindByReferralCode(ctx, code, restaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if referrer.UserID == referredUserID {
		return nil, domain.ErrSelfReferral
	}
	if limit := settings.MaxReferralsPerUser; limit > 0 && referrer.ReferralsMadeFor(restaurantID) >= limit {
		span.AddEvent("referral cap reached")
		return nil, domain.ErrReferralCapReached
	}

	// 一次性写入的守卫先落库，后面任何一步失败后重试都从这里短路
	if err := s.accountRepo.SetReferredBy(ctx, referredUserID, domain.ReferredBy{
		RestaurantID:   restaurantID,
		ReferrerUserID: referrer.UserID,
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	referrerReward, err := s.payReferralReward(ctx, referrer.UserID, restaurantID, settings.ReferralRewards.Referrer)
	if err != nil {
		// 守卫已提交，发奖失败只记日志，重试由运维侧补偿
		log.Printf("ERROR: [Referral: %s] referrer payout failed for %s: %v", referredUserID, referrer.UserID, err)
	}
	referredReward, err := s.payReferralReward(ctx, referredUserID, restaurantID, settings.ReferralRewards.Referred)
	if err != nil {
		log.Printf("ERROR: [Referral: %s] referred payout failed: %v", referredUserID, err)
	}

	if err := s.accountRepo.AddReferralEdge(ctx, referrer.UserID, restaurantID, referredUserID); err != nil {
		log.Printf("ERROR: [Referral: %s] failed to record referral edge: %v", referredUserID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "referral edge not recorded")
	}
	if err := s.accountRepo.AddVisitedRestaurant(ctx, referredUserID, restaurantID); err != nil {
		log.Printf("ERROR: [Referral: %s] failed to record visited restaurant: %v", referredUserID, err)
	}

	s.notify(ctx, &domain.NotificationEvent{
		UserID:       referrer.UserID,
		RestaurantID: restaurantID,
		PhoneNumber:  referrer.PhoneNumber,
		Kind:         "referral",
		Message:      fmt.Sprintf("Your referral code was used at %s. You earned: %s", settings.Name, referrerReward),
	})
	s.notify(ctx, &domain.NotificationEvent{
		UserID:       referredUserID,
		RestaurantID: restaurantID,
		Kind:         "referral",
		Message:      fmt.Sprintf("Welcome to %s! Your referral reward: %s", settings.Name, referredReward),
	})

	log.Printf("SUCCESS: [Referral: %s] referred by %s at %s", referredUserID, referrer.UserID, restaurantID)
	return &ReferralResult{
		ReferrerUserID: referrer.UserID,
		ReferredUserID: referredUserID,
		ReferrerReward: referrerReward,
		ReferredReward: referredReward,
	}, nil
}

// payReferralReward 按奖励类型多态发放：points 走积分账本；
// coupon/item 不动积分，只在 redemption_history 里签发一个带码的条目。
func (s *LoyaltyApplicationService) payReferralReward(ctx context.Context, userID, restaurantID string, spec domain.RewardSpec) (string, error) {
	switch spec.Type {
	case domain.RewardPoints:
		points := spec.PointsValue()
		if points == 0 {
			return "0 points", nil
		}
		_, err := s.accountRepo.ApplyDelta(ctx, userID, domain.Delta{
			TotalPoints:  points,
			RestaurantID: restaurantID,
			History: []domain.HistoryEntry{{
				Kind:         domain.HistoryRedemption,
				RestaurantID: restaurantID,
				Reward:       fmt.Sprintf("Referral bonus: %d points", points),
				Points:       points,
			}},
		})
		if err != nil {
			ledgerMutations.WithLabelValues("referral_payout", "error").Inc()
			return "", err
		}
		ledgerMutations.WithLabelValues("referral_payout", "ok").Inc()
		return fmt.Sprintf("%d points", points), nil

	case domain.RewardCoupon, domain.RewardItem:
		code := newCouponCode()
		err := s.accountRepo.AppendHistory(ctx, userID, domain.HistoryEntry{
			Kind:         domain.HistoryRedemption,
			RestaurantID: restaurantID,
			Reward:       spec.Value,
			CouponCode:   code,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (%s)", spec.Value, code), nil

	default:
		return "", fmt.Errorf("unknown referral reward type %q", spec.Type)
	}
}
