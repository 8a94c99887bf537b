package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restrohub/internal/service/loyalty/domain"
)

func referralSettings() *domain.Settings {
	s := testSettings()
	s.MaxReferralsPerUser = 2
	s.ReferralRewards = &domain.ReferralRewards{
		Referrer: domain.RewardSpec{Type: domain.RewardPoints, Value: "100"},
		Referred: domain.RewardSpec{Type: domain.RewardPoints, Value: "50"},
	}
	return s
}

func TestProcessReferral_PaysBothSides(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc, notifier := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(referralSettings()))
	ctx := context.Background()

	code, err := accounts.EnsureReferralCode(ctx, "referrer", "rest-1", "REF-AAAA1111")
	require.NoError(t, err)

	res, err := svc.ProcessReferral(ctx, "newcomer", code, "rest-1")
	require.NoError(t, err)
	assert.Equal(t, "referrer", res.ReferrerUserID)
	assert.Equal(t, "100 points", res.ReferrerReward)
	assert.Equal(t, "50 points", res.ReferredReward)

	referrer, err := accounts.Get(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, int64(100), referrer.TotalPoints)
	assert.Equal(t, 1, referrer.ReferralsMadeFor("rest-1"))

	newcomer, err := accounts.Get(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, int64(50), newcomer.TotalPoints)
	require.NotNil(t, newcomer.ReferredBy)
	assert.Equal(t, "referrer", newcomer.ReferredBy.ReferrerUserID)
	assert.Contains(t, newcomer.VisitedRestaurants, "rest-1")

	// 双边各收一条通知
	assert.Equal(t, 2, notifier.count())
}

func TestProcessReferral_Guards(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc, _ := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(referralSettings()))
	ctx := context.Background()

	code, err := accounts.EnsureReferralCode(ctx, "referrer", "rest-1", "REF-BBBB2222")
	require.NoError(t, err)

	_, err = svc.ProcessReferral(ctx, "someone", "REF-NOPE0000", "rest-1")
	assert.ErrorIs(t, err, domain.ErrInvalidReferralCode)

	_, err = svc.ProcessReferral(ctx, "referrer", code, "rest-1")
	assert.ErrorIs(t, err, domain.ErrSelfReferral)

	// 第二次推荐同一个用户从 referred_by 的一次性写入短路
	_, err = svc.ProcessReferral(ctx, "newcomer", code, "rest-1")
	require.NoError(t, err)
	_, err = svc.ProcessReferral(ctx, "newcomer", code, "rest-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyReferred)

	referrer, err := accounts.Get(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, int64(100), referrer.TotalPoints, "duplicate referral must not pay twice")
}

func TestProcessReferral_CapReached(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc, _ := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(referralSettings()))
	ctx := context.Background()

	code, err := accounts.EnsureReferralCode(ctx, "referrer", "rest-1", "REF-CCCC3333")
	require.NoError(t, err)

	_, err = svc.ProcessReferral(ctx, "friend-1", code, "rest-1")
	require.NoError(t, err)
	_, err = svc.ProcessReferral(ctx, "friend-2", code, "rest-1")
	require.NoError(t, err)

	_, err = svc.ProcessReferral(ctx, "friend-3", code, "rest-1")
	assert.ErrorIs(t, err, domain.ErrReferralCapReached)

	// 超限的用户没有被标记，换一家餐厅依然可以被推荐
	friend3, err := accounts.Get(ctx, "friend-3")
	require.NoError(t, err)
	assert.Nil(t, friend3.ReferredBy)
}

func TestProcessReferral_NotEnabled(t *testing.T) {
	svc, _ := newTestService(newFakeAccountRepo(), newFakeCouponRepo(), newFakeSettingsRepo(testSettings()))

	_, err := svc.ProcessReferral(context.Background(), "newcomer", "REF-DDDD4444", "rest-1")
	assert.ErrorIs(t, err, domain.ErrReferralNotEnabled)
}

func TestProcessReferral_CouponReward(t *testing.T) {
	accounts := newFakeAccountRepo()
	settings := referralSettings()
	settings.ReferralRewards.Referred = domain.RewardSpec{Type: domain.RewardCoupon, Value: "Free Starter"}
	svc, _ := newTestService(accounts, newFakeCouponRepo(), newFakeSettingsRepo(settings))
	ctx := context.Background()

	code, err := accounts.EnsureReferralCode(ctx, "referrer", "rest-1", "REF-EEEE5555")
	require.NoError(t, err)

	res, err := svc.ProcessReferral(ctx, "newcomer", code, "rest-1")
	require.NoError(t, err)
	assert.Regexp(t, `^Free Starter \(COUPON-[A-Z0-9]{8}\)$`, res.ReferredReward)

	// 券/实物类奖励不动积分，只落带码的历史条目
	newcomer, err := accounts.Get(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, int64(0), newcomer.TotalPoints)

	history := accounts.historyOf("newcomer")
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryRedemption, history[0].Kind)
	assert.Equal(t, "Free Starter", history[0].Reward)
	assert.NotEmpty(t, history[0].CouponCode)
}
