// internal/service/loyalty/application/claim.go
package application

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"restrohub/internal/service/loyalty/domain"
)

// ClaimReward 是领取奖励的主流程：校验餐厅和 offer，算分，签发券，
// 一次账本增量落所有数值和历史，最后给出下一档提示。
// 原子性策略：券先创建（此时对任何读路径都是惰性存在，没有副作用），
// 账本增量失败则删券补偿，成功后通知走 fire-and-forget。
func (s *LoyaltyApplicationService) ClaimReward(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.ClaimReward")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("restaurant.id", req.RestaurantID),
		attribute.String("claim.offer", req.Offer),
		attribute.Float64("claim.spend_amount", req.SpendAmount),
		attribute.Bool("claim.from_spin", req.FromSpin),
	)

	if req.SpendAmount < 0 {
		claimOutcomes.WithLabelValues("invalid_amount").Inc()
		return nil, domain.ErrInvalidSpendAmount
	}

	settings, err := s.settingsRepo.Get(ctx, req.RestaurantID)
	if err != nil {
		claimOutcomes.WithLabelValues("restaurant_not_found").Inc()
		span.RecordError(err)
		return nil, err
	}
	if !settings.HasOffer(req.Offer) {
		claimOutcomes.WithLabelValues("invalid_offer").Inc()
		return nil, domain.ErrInvalidOffer
	}

	acc, err := s.accountRepo.Get(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 餐厅可配置一条 CEL 规则对本次领取做资格判断
	eligible, err := s.ruleEngine.Evaluate(settings.ClaimRule, domain.ClaimFact{
		Offer:       req.Offer,
		SpendAmount: req.SpendAmount,
		TotalPoints: acc.TotalPoints,
		Tier:        string(acc.Tier),
		SpinCount:   acc.SpinCount,
	})
	if err != nil {
		// 规则本身坏掉按不启用处理，领取不应被配置错误卡死
		log.Printf("ERROR: [Claim: %s] claim rule evaluation failed for %s: %v", req.UserID, req.RestaurantID, err)
	} else if !eligible {
		claimOutcomes.WithLabelValues("not_eligible").Inc()
		span.AddEvent("claim rejected by restaurant rule")
		return nil, domain.ErrClaimNotEligible
	}

	spendPoints := int64(math.Floor(req.SpendAmount * settings.PointsPerRupee))
	var spinPoints int64
	if req.FromSpin {
		spinPoints = settings.SpinPointsPerSpin * (acc.SpinCount + 1)
	}

	now := time.Now().UTC()
	coupon := &domain.Coupon{
		CouponCode:   newCouponCode(),
		UserID:       req.UserID,
		RestaurantID: req.RestaurantID,
		Offer:        req.Offer,
		ExpiryDate:   now.AddDate(0, 0, settings.CouponExpiryDays),
		CreatedAt:    now,
	}
	if err := s.couponRepo.Create(ctx, coupon); err != nil {
		claimOutcomes.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to issue coupon")
		return nil, err
	}
	span.AddEvent("coupon issued")

	delta := domain.Delta{
		TotalPoints:  spendPoints + spinPoints,
		SpendPoints:  spendPoints,
		SpinPoints:   spinPoints,
		RestaurantID: req.RestaurantID,
		History: []domain.HistoryEntry{
			{
				Kind:         domain.HistoryClaim,
				RestaurantID: req.RestaurantID,
				Reward:       req.Offer,
				CouponCode:   coupon.CouponCode,
				Points:       spendPoints + spinPoints,
				Amount:       req.SpendAmount,
			},
			{
				Kind:         domain.HistoryRedemption,
				RestaurantID: req.RestaurantID,
				Reward:       req.Offer,
				CouponCode:   coupon.CouponCode,
			},
		},
	}
	if spendPoints > 0 || req.SpendAmount > 0 {
		delta.History = append(delta.History, domain.HistoryEntry{
			Kind:         domain.HistorySpend,
			RestaurantID: req.RestaurantID,
			Points:       spendPoints,
			Amount:       req.SpendAmount,
		})
	}
	if req.FromSpin {
		delta.History = append(delta.History, domain.HistoryEntry{
			Kind:         domain.HistorySpin,
			RestaurantID: req.RestaurantID,
			Points:       spinPoints,
		})
	}
	if req.SpendAmount >= punchSpendFloor {
		delta.Punches = 1
	}

	updated, err := s.accountRepo.ApplyDelta(ctx, req.UserID, delta)
	if err != nil {
		// 补偿：撤掉刚签发、还没被任何人引用的券
		if delErr := s.couponRepo.Delete(ctx, coupon.CouponCode); delErr != nil {
			log.Printf("CRITICAL: [Claim: %s] ledger delta failed AND coupon %s compensation failed: %v", req.UserID, coupon.CouponCode, delErr)
		}
		claimOutcomes.WithLabelValues("error").Inc()
		ledgerMutations.WithLabelValues("claim", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger delta failed, coupon compensated")
		return nil, err
	}
	ledgerMutations.WithLabelValues("claim", "ok").Inc()
	claimOutcomes.WithLabelValues("ok").Inc()

	if err := s.accountRepo.AddVisitedRestaurant(ctx, req.UserID, req.RestaurantID); err != nil {
		log.Printf("ERROR: [Claim: %s] failed to record visited restaurant: %v", req.UserID, err)
	}
	if req.PhoneNumber != "" {
		if err := s.accountRepo.SetPhoneNumber(ctx, req.UserID, req.PhoneNumber); err != nil {
			log.Printf("ERROR: [Claim: %s] failed to record phone number: %v", req.UserID, err)
		}
	}

	result := &ClaimResult{
		CouponCode:  coupon.CouponCode,
		Offer:       req.Offer,
		ExpiryDate:  coupon.ExpiryDate,
		SpendPoints: spendPoints,
		SpinPoints:  spinPoints,
		TotalPoints: updated.TotalPoints,
		Tier:        string(updated.Tier),
		Punches:     updated.Punches,
	}
	// 下一档提示用提交后的权威总分计算
	if next, reward, ok := settings.Thresholds.NextReward(updated.TotalPoints); ok {
		result.NextOffer = reward
		result.PointsToNext = next - updated.TotalPoints
	}

	s.notify(ctx, &domain.NotificationEvent{
		UserID:       req.UserID,
		RestaurantID: req.RestaurantID,
		PhoneNumber:  req.PhoneNumber,
		Kind:         "claim",
		Message: fmt.Sprintf("You earned %d points at %s! Coupon %s for %q expires on %s.",
			spendPoints+spinPoints, settings.Name, coupon.CouponCode, req.Offer,
			coupon.ExpiryDate.Format("2006-01-02")),
	})

	log.Printf("SUCCESS: [Claim: %s] %q claimed at %s, +%d points, coupon %s", req.UserID, req.Offer, req.RestaurantID, spendPoints+spinPoints, coupon.CouponCode)
	return result, nil
}
