// internal/service/loyalty/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"restrohub/internal/service/loyalty/domain"
	"restrohub/internal/service/loyalty/port"
)

const (
	punchCardRequired = 10
	punchCardReward   = "Free Dessert"

	// 消费满这个金额，本次领取额外打一个孔
	punchSpendFloor = 50.0

	// 积分兑换折扣的最小面额，兑换率 floor(v/50)% off
	redeemPointsUnit = 50
)

// LoyaltyApplicationService 只做业务流程编排，持久化和外部投递
// 全部通过注入的仓储与端口完成。
type LoyaltyApplicationService struct {
	accountRepo  domain.AccountRepository
	couponRepo   domain.CouponRepository
	settingsRepo domain.SettingsRepository
	auditRepo    domain.AuditLogRepository

	tracer trace.Tracer

	notifier   port.NotificationDispatcher
	spinGuard  port.SpinGuard
	ruleEngine port.ClaimRuleEngine
	locks      port.LockFactory

	frontendBaseURL string
}

func NewLoyaltyApplicationService(
	accountRepo domain.AccountRepository,
	couponRepo domain.CouponRepository,
	settingsRepo domain.SettingsRepository,
	auditRepo domain.AuditLogRepository,
	tracer trace.Tracer,
	notifier port.NotificationDispatcher,
	spinGuard port.SpinGuard,
	ruleEngine port.ClaimRuleEngine,
	locks port.LockFactory,
	frontendBaseURL string,
) *LoyaltyApplicationService {
	return &LoyaltyApplicationService{
		accountRepo: accountRepo, couponRepo: couponRepo,
		settingsRepo: settingsRepo, auditRepo: auditRepo,
		tracer: tracer, notifier: notifier, spinGuard: spinGuard,
		ruleEngine: ruleEngine, locks: locks,
		frontendBaseURL: frontendBaseURL,
	}
}

// GetBalance 读取账户快照。
func (s *LoyaltyApplicationService) GetBalance(ctx context.Context, userID string) (*BalanceResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.GetBalance")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	acc, err := s.accountRepo.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load account")
		return nil, err
	}

	codesByRestaurant := make(map[string]string, len(acc.ReferralCodes))
	for _, rc := range acc.ReferralCodes {
		codesByRestaurant[rc.RestaurantID] = rc.Code
	}
	return &BalanceResult{
		UserID:           acc.UserID,
		TotalPoints:      acc.TotalPoints,
		SpinPoints:       acc.SpinPoints,
		SpendPoints:      acc.SpendPoints,
		Punches:          acc.Punches,
		Tier:             string(acc.Tier),
		RestaurantPoints: acc.RestaurantPoints,
		ReferralCodes:    codesByRestaurant,
	}, nil
}

// TrackSpending 记录一次消费：按 points_per_rupee 换算积分，
// 写入 spend_history 并更新餐厅子余额。
func (s *LoyaltyApplicationService) TrackSpending(ctx context.Context, userID, restaurantID string, amount float64) (*TrackResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.TrackSpending")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("restaurant.id", restaurantID),
		attribute.Float64("spend.amount", amount),
	)

	if amount < 0 {
		return nil, domain.ErrInvalidSpendAmount
	}
	settings, err := s.settingsRepo.Get(ctx, restaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	points := int64(math.Floor(amount * settings.PointsPerRupee))
	acc, err := s.accountRepo.ApplyDelta(ctx, userID, domain.Delta{
		TotalPoints:  points,
		SpendPoints:  points,
		RestaurantID: restaurantID,
		History: []domain.HistoryEntry{{
			Kind:         domain.HistorySpend,
			RestaurantID: restaurantID,
			Points:       points,
			Amount:       amount,
		}},
	})
	if err != nil {
		ledgerMutations.WithLabelValues("track_spending", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger delta failed")
		return nil, err
	}
	ledgerMutations.WithLabelValues("track_spending", "ok").Inc()

	if err := s.accountRepo.AddVisitedRestaurant(ctx, userID, restaurantID); err != nil {
		log.Printf("ERROR: [Loyalty: %s] failed to record visited restaurant %s: %v", userID, restaurantID, err)
	}
	s.audit(ctx, userID, "track_spending", map[string]interface{}{
		"restaurant_id": restaurantID,
		"amount":        amount,
		"points":        points,
	})

	return &TrackResult{PointsEarned: points, TotalPoints: acc.TotalPoints, Tier: string(acc.Tier)}, nil
}

// TrackSpin 记录一次转盘：冷却窗口由 SpinGuard 原子占用，
// 窗口内的重复请求收到 ErrSpinCooldown。
func (s *LoyaltyApplicationService) TrackSpin(ctx context.Context, userID, restaurantID string) (*TrackResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.TrackSpin")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("restaurant.id", restaurantID),
	)

	settings, err := s.settingsRepo.Get(ctx, restaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ok, err := s.spinGuard.TryAcquire(ctx, userID, restaurantID)
	if err != nil {
		// 冷却守卫坏掉时放行而不是拒绝，转盘只是营销入口
		log.Printf("ERROR: [Loyalty: %s] spin guard unavailable, allowing spin: %v", userID, err)
	} else if !ok {
		span.AddEvent("spin rejected by cooldown window")
		return nil, domain.ErrSpinCooldown
	}

	points := settings.SpinPointsPerSpin
	acc, err := s.accountRepo.ApplyDelta(ctx, userID, domain.Delta{
		TotalPoints:  points,
		SpinPoints:   points,
		RestaurantID: restaurantID,
		History: []domain.HistoryEntry{{
			Kind:         domain.HistorySpin,
			RestaurantID: restaurantID,
			Points:       points,
		}},
	})
	if err != nil {
		ledgerMutations.WithLabelValues("track_spin", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger delta failed")
		return nil, err
	}
	ledgerMutations.WithLabelValues("track_spin", "ok").Inc()

	s.audit(ctx, userID, "track_spin", map[string]interface{}{
		"restaurant_id": restaurantID,
		"points":        points,
	})
	return &TrackResult{PointsEarned: points, TotalPoints: acc.TotalPoints, Tier: string(acc.Tier)}, nil
}

// RedeemPoints 把积分兑换成折扣：floor(v/50)% off，最少 50 分，
// 余额不足由账本守卫拒绝。
func (s *LoyaltyApplicationService) RedeemPoints(ctx context.Context, userID, restaurantID string, pointsValue int64) (*RedeemPointsResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.RedeemPoints")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int64("points.value", pointsValue),
	)

	if pointsValue < redeemPointsUnit {
		return nil, domain.ErrInvalidPointsValue
	}
	reward := fmt.Sprintf("%d%% off", pointsValue/redeemPointsUnit)

	acc, err := s.accountRepo.ApplyDelta(ctx, userID, domain.Delta{
		TotalPoints: -pointsValue,
		History: []domain.HistoryEntry{{
			Kind:         domain.HistoryRedemption,
			RestaurantID: restaurantID,
			Reward:       reward,
			Points:       -pointsValue,
		}},
	})
	if err != nil {
		ledgerMutations.WithLabelValues("redeem_points", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger delta failed")
		return nil, err
	}
	ledgerMutations.WithLabelValues("redeem_points", "ok").Inc()

	log.Printf("INFO: [Loyalty: %s] redeemed %d points for %q, %d remaining", userID, pointsValue, reward, acc.TotalPoints)
	return &RedeemPointsResult{
		Reward:          reward,
		RemainingPoints: acc.TotalPoints,
		Tier:            string(acc.Tier),
	}, nil
}

// RedeemPunchCard 兑换打孔卡：满 10 孔换固定奖励并清零。
// 先做守卫递减（并发兑换只有一个成功），再把余数清零。
func (s *LoyaltyApplicationService) RedeemPunchCard(ctx context.Context, userID, restaurantID string) (*PunchCardResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.RedeemPunchCard")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if _, err := s.accountRepo.ApplyDelta(ctx, userID, domain.Delta{
		Punches: -punchCardRequired,
		History: []domain.HistoryEntry{{
			Kind:         domain.HistoryRedemption,
			RestaurantID: restaurantID,
			Reward:       punchCardReward,
		}},
	}); err != nil {
		ledgerMutations.WithLabelValues("redeem_punch_card", "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	if _, err := s.accountRepo.ApplyDelta(ctx, userID, domain.Delta{ResetPunches: true}); err != nil {
		// 奖励已发放，清零失败只影响余数展示
		log.Printf("ERROR: [Loyalty: %s] failed to reset punches after redemption: %v", userID, err)
	}
	ledgerMutations.WithLabelValues("redeem_punch_card", "ok").Inc()

	return &PunchCardResult{Reward: punchCardReward, RemainingPunches: 0}, nil
}

// RedeemCoupon 兑换一张券。守卫的权威校验在仓储事务里，
// 这里的预读只为了拿到 offer 文案和快速失败。
func (s *LoyaltyApplicationService) RedeemCoupon(ctx context.Context, userID, couponCode string) error {
	ctx, span := s.tracer.Start(ctx, "loyalty.RedeemCoupon")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("coupon.code", couponCode),
	)

	now := time.Now().UTC()
	coupon, err := s.couponRepo.FindByCode(ctx, couponCode)
	if err != nil {
		couponRedemptions.WithLabelValues("not_found").Inc()
		span.RecordError(err)
		return err
	}
	if err := coupon.CanRedeem(userID, now); err != nil {
		couponRedemptions.WithLabelValues(redemptionStatus(err)).Inc()
		span.AddEvent("redemption rejected by pre-check")
		return err
	}

	if err := s.couponRepo.Redeem(ctx, couponCode, userID, now); err != nil {
		couponRedemptions.WithLabelValues(redemptionStatus(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "coupon redemption failed")
		return err
	}
	couponRedemptions.WithLabelValues("used").Inc()

	if err := s.accountRepo.AppendHistory(ctx, userID, domain.HistoryEntry{
		Kind:         domain.HistoryRedemption,
		RestaurantID: coupon.RestaurantID,
		Reward:       coupon.Offer,
		CouponCode:   couponCode,
	}); err != nil {
		log.Printf("ERROR: [Loyalty: %s] coupon %s redeemed but history append failed: %v", userID, couponCode, err)
	}
	log.Printf("INFO: [Loyalty: %s] redeemed coupon %s (%s)", userID, couponCode, coupon.Offer)
	return nil
}

// GenerateReferralCode 惰性生成用户在某餐厅下的推荐码。
// 已有码直接返回，不会重新生成。
func (s *LoyaltyApplicationService) GenerateReferralCode(ctx context.Context, userID, restaurantID string) (*ReferralCodeResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.GenerateReferralCode")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("restaurant.id", restaurantID),
	)

	if _, err := s.settingsRepo.Get(ctx, restaurantID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	code, err := s.accountRepo.EnsureReferralCode(ctx, userID, restaurantID, newReferralCode())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ReferralCodeResult{
		Code: code,
		URL:  fmt.Sprintf("%s/referral?code=%s&restaurant=%s", s.frontendBaseURL, code, restaurantID),
	}, nil
}

// ListCoupons 返回用户名下的全部券。
func (s *LoyaltyApplicationService) ListCoupons(ctx context.Context, userID string) ([]*domain.Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.ListCoupons")
	defer span.End()
	return s.couponRepo.ListByUser(ctx, userID)
}

// ListRestaurantCoupons 是管理端的券清单。
func (s *LoyaltyApplicationService) ListRestaurantCoupons(ctx context.Context, restaurantID string) ([]*domain.Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.ListRestaurantCoupons")
	defer span.End()
	if _, err := s.settingsRepo.Get(ctx, restaurantID); err != nil {
		return nil, err
	}
	return s.couponRepo.ListByRestaurant(ctx, restaurantID)
}

// EditCouponExpiry 是管理端的有效期修正，新日期不得早于今天。
func (s *LoyaltyApplicationService) EditCouponExpiry(ctx context.Context, adminID, couponCode string, expiry time.Time) error {
	ctx, span := s.tracer.Start(ctx, "loyalty.EditCouponExpiry")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.code", couponCode))

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if expiry.UTC().Truncate(24 * time.Hour).Before(today) {
		return domain.ErrExpiryInPast
	}
	if err := s.couponRepo.UpdateExpiry(ctx, couponCode, expiry); err != nil {
		span.RecordError(err)
		return err
	}
	s.audit(ctx, adminID, "edit_coupon_expiry", map[string]interface{}{
		"coupon_code": couponCode,
		"expiry":      expiry.Format("2006-01-02"),
	})
	return nil
}

// RegisterRestaurant 注册一家餐厅的忠诚度配置（管理端）。
func (s *LoyaltyApplicationService) RegisterRestaurant(ctx context.Context, adminID string, req RegisterRestaurantRequest) (*domain.Settings, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.RegisterRestaurant")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.id", req.RestaurantID))

	if req.RestaurantID == "" || strings.TrimSpace(req.Name) == "" || len(req.Offers) == 0 {
		return nil, domain.ErrInvalidRestaurant
	}

	settings := &domain.Settings{
		RestaurantID:        req.RestaurantID,
		Name:                req.Name,
		Offers:              req.Offers,
		PointsPerRupee:      req.PointsPerRupee,
		SpinPointsPerSpin:   req.SpinPointsPerSpin,
		CouponExpiryDays:    req.CouponExpiryDays,
		MaxReferralsPerUser: req.MaxReferralsPerUser,
		ClaimRule:           req.ClaimRule,
		Thresholds:          domain.Thresholds{},
	}
	if settings.SpinPointsPerSpin <= 0 {
		settings.SpinPointsPerSpin = 10
	}
	if settings.CouponExpiryDays <= 0 {
		settings.CouponExpiryDays = 30
	}
	if req.Thresholds != "" {
		th, err := domain.ParseThresholds(req.Thresholds)
		if err != nil {
			return nil, err
		}
		settings.Thresholds = th
	}

	if err := s.settingsRepo.Create(ctx, settings); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register restaurant")
		return nil, err
	}
	s.audit(ctx, adminID, "register_restaurant", map[string]interface{}{
		"restaurant_id": req.RestaurantID,
		"name":          req.Name,
	})
	log.Printf("INFO: [Restaurant: %s] registered with %d offers", req.RestaurantID, len(req.Offers))
	return settings, nil
}

// SettingsHistory 返回餐厅配置的全部历史快照。
func (s *LoyaltyApplicationService) SettingsHistory(ctx context.Context, restaurantID string) ([]domain.SettingsSnapshot, error) {
	return s.settingsRepo.History(ctx, restaurantID)
}

// notify 把事件投到出站队列。发布失败只记日志，积分/券的
// 变更已经提交，绝不因为通知失败而让主操作失败。
// 事件没带号码时从账户补齐，没留过号码的用户由下游跳过投递。
func (s *LoyaltyApplicationService) notify(ctx context.Context, event *domain.NotificationEvent) {
	if s.notifier == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.PhoneNumber == "" {
		if acc, err := s.accountRepo.Get(ctx, event.UserID); err == nil {
			event.PhoneNumber = acc.PhoneNumber
		}
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		log.Printf("ERROR: [Loyalty: %s] failed to enqueue %s notification: %v", event.UserID, event.Kind, err)
	}
}

// audit 落一条审计行，失败同样只记日志。
func (s *LoyaltyApplicationService) audit(ctx context.Context, userID, action string, details map[string]interface{}) {
	if s.auditRepo == nil {
		return
	}
	if err := s.auditRepo.Append(ctx, domain.AuditEntry{
		UserID:  userID,
		Action:  action,
		Details: details,
	}); err != nil {
		log.Printf("ERROR: [Audit: %s] failed to append %s entry: %v", userID, action, err)
	}
}

// newCouponCode 生成 COUPON- 前缀加 8 位大写随机段的券码。
func newCouponCode() string {
	return "COUPON-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// newReferralCode 生成 REF- 前缀的推荐码。
func newReferralCode() string {
	return "REF-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// redemptionStatus 把兑换错误折叠成指标标签。
func redemptionStatus(err error) string {
	switch {
	case err == nil:
		return "used"
	case errors.Is(err, domain.ErrCouponAlreadyUsed):
		return "already_used"
	case errors.Is(err, domain.ErrCouponExpired):
		return "expired"
	case errors.Is(err, domain.ErrCouponNotOwned):
		return "not_owned"
	case errors.Is(err, domain.ErrCouponNotFound):
		return "not_found"
	default:
		return "error"
	}
}
