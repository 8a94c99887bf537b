package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restrohub/internal/service/loyalty/domain"
)

func TestGetBalance_LazyDefaultAccount(t *testing.T) {
	svc, _ := newTestService(newFakeAccountRepo(), newFakeCouponRepo(), newFakeSettingsRepo(testSettings()))

	res, err := svc.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", res.UserID)
	assert.Equal(t, int64(0), res.TotalPoints)
	assert.Equal(t, string(domain.TierBronze), res.Tier)
	assert.Empty(t, res.RestaurantPoints)
}

func TestTrackSpending(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc, _ := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(testSettings()))
	ctx := context.Background()

	_, err := svc.TrackSpending(ctx, "user-1", "rest-1", -10)
	assert.ErrorIs(t, err, domain.ErrInvalidSpendAmount)

	// pointsPerRupee = 1，120.75 卢比落在 120 分。
	res, err := svc.TrackSpending(ctx, "user-1", "rest-1", 120.75)
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.PointsEarned)
	assert.Equal(t, int64(120), res.TotalPoints)
	assert.Equal(t, string(domain.TierSilver), res.Tier)

	acc, err := accounts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), acc.RestaurantPoints["rest-1"])
	assert.Equal(t, int64(120), acc.SpendPoints)
}

func TestTrackSpin_Cooldown(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc, _ := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(testSettings()))
	ctx := context.Background()

	res, err := svc.TrackSpin(ctx, "user-1", "rest-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.PointsEarned)

	svc.spinGuard = &fakeSpinGuard{allow: false}
	_, err = svc.TrackSpin(ctx, "user-1", "rest-1")
	assert.ErrorIs(t, err, domain.ErrSpinCooldown)

	// 冷却中的请求不得留下任何账本痕迹。
	acc, err := accounts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.TotalPoints)
	assert.Equal(t, int64(1), acc.SpinCount)
}

func TestRedeemPoints(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc, _ := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(testSettings()))
	ctx := context.Background()

	_, err := accounts.ApplyDelta(ctx, "user-1", domain.Delta{TotalPoints: 120})
	require.NoError(t, err)

	_, err = svc.RedeemPoints(ctx, "user-1", "rest-1", 49)
	assert.ErrorIs(t, err, domain.ErrInvalidPointsValue)

	res, err := svc.RedeemPoints(ctx, "user-1", "rest-1", 100)
	require.NoError(t, err)
	assert.Equal(t, "2% off", res.Reward)
	assert.Equal(t, int64(20), res.RemainingPoints)
	assert.Equal(t, string(domain.TierBronze), res.Tier)

	_, err = svc.RedeemPoints(ctx, "user-1", "rest-1", 50)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestRedeemPunchCard(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc, _ := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(testSettings()))
	ctx := context.Background()

	_, err := accounts.ApplyDelta(ctx, "user-1", domain.Delta{Punches: 9})
	require.NoError(t, err)

	_, err = svc.RedeemPunchCard(ctx, "user-1", "rest-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientPunches)

	_, err = accounts.ApplyDelta(ctx, "user-1", domain.Delta{Punches: 2})
	require.NoError(t, err)

	res, err := svc.RedeemPunchCard(ctx, "user-1", "rest-1")
	require.NoError(t, err)
	assert.Equal(t, "Free Dessert", res.Reward)
	assert.Equal(t, int64(0), res.RemainingPunches)

	acc, err := accounts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Punches)
}

func TestRedeemCoupon(t *testing.T) {
	coupons := newFakeCouponRepo()
	svc, _ := newTestService(newFakeAccountRepo(), coupons, newFakeSettingsRepo(testSettings()))
	ctx := context.Background()

	require.NoError(t, coupons.Create(ctx, testCouponFor("COUPON-AAAA1111", "user-1")))

	assert.ErrorIs(t, svc.RedeemCoupon(ctx, "user-1", "COUPON-MISSING0"), domain.ErrCouponNotFound)
	assert.ErrorIs(t, svc.RedeemCoupon(ctx, "user-2", "COUPON-AAAA1111"), domain.ErrCouponNotOwned)

	require.NoError(t, svc.RedeemCoupon(ctx, "user-1", "COUPON-AAAA1111"))
	assert.ErrorIs(t, svc.RedeemCoupon(ctx, "user-1", "COUPON-AAAA1111"), domain.ErrCouponAlreadyUsed)
}

func TestRedeemCoupon_ExactlyOneConcurrentWinner(t *testing.T) {
	coupons := newFakeCouponRepo()
	svc, _ := newTestService(newFakeAccountRepo(), coupons, newFakeSettingsRepo(testSettings()))
	ctx := context.Background()

	require.NoError(t, coupons.Create(ctx, testCouponFor("COUPON-BBBB2222", "user-1")))

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.RedeemCoupon(ctx, "user-1", "COUPON-BBBB2222")
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsed)
		}
	}
	assert.Equal(t, 1, won)
}

func TestApplyDelta_ConcurrentIncrementsSum(t *testing.T) {
	accounts := newFakeAccountRepo()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := accounts.ApplyDelta(ctx, "user-1", domain.Delta{TotalPoints: 5, RestaurantID: "rest-1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := accounts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*5), acc.TotalPoints)
	assert.Equal(t, int64(workers*5), acc.RestaurantPoints["rest-1"])
}

func TestGenerateReferralCode_Stable(t *testing.T) {
	svc, _ := newTestService(newFakeAccountRepo(), newFakeCouponRepo(), newFakeSettingsRepo(testSettings()))
	ctx := context.Background()

	first, err := svc.GenerateReferralCode(ctx, "user-1", "rest-1")
	require.NoError(t, err)
	assert.Regexp(t, `^REF-[A-Z0-9]{8}$`, first.Code)
	assert.Contains(t, first.URL, first.Code)
	assert.Contains(t, first.URL, "rest-1")

	second, err := svc.GenerateReferralCode(ctx, "user-1", "rest-1")
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)

	_, err = svc.GenerateReferralCode(ctx, "user-1", "rest-unknown")
	assert.ErrorIs(t, err, domain.ErrRestaurantNotFound)
}

func TestRegisterRestaurant(t *testing.T) {
	settings := newFakeSettingsRepo()
	svc, _ := newTestService(newFakeAccountRepo(), newFakeCouponRepo(), settings)
	ctx := context.Background()

	_, err := svc.RegisterRestaurant(ctx, "admin-1", RegisterRestaurantRequest{RestaurantID: "rest-2"})
	assert.ErrorIs(t, err, domain.ErrInvalidRestaurant)

	created, err := svc.RegisterRestaurant(ctx, "admin-1", RegisterRestaurantRequest{
		RestaurantID: "rest-2",
		Name:         "Cafe Dos",
		Offers:       []string{"Free Coffee"},
		Thresholds:   "100:10%,300:20%",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), created.SpinPointsPerSpin)
	assert.Equal(t, 30, created.CouponExpiryDays)
	assert.Equal(t, "10%", created.Thresholds[100])

	history, err := svc.SettingsHistory(ctx, "rest-2")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
