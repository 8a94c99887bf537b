package application

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"restrohub/internal/service/loyalty/domain"
	"restrohub/internal/service/loyalty/port"
)

// fakeAccountRepo 用互斥锁模拟存储层的原子语义：
// ApplyDelta 整体在锁内执行，守卫与自增是一个单元。
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*accountState

	failApplyDelta error // 非 nil 时 ApplyDelta 直接失败
}

type accountState struct {
	totalPoints int64
	spinPoints  int64
	spendPoints int64
	punches     int64
	tier        domain.Tier
	phoneNumber string

	restaurantPoints map[string]int64
	referralCodes    map[string]string // restaurantID -> code
	referredBy       *domain.ReferredBy
	referralEdges    []domain.ReferralEdge
	visited          map[string]bool
	history          []domain.HistoryEntry
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[string]*accountState{}}
}

func (r *fakeAccountRepo) state(userID string) *accountState {
	st, ok := r.accounts[userID]
	if !ok {
		st = &accountState{
			tier:             domain.TierBronze,
			restaurantPoints: map[string]int64{},
			referralCodes:    map[string]string{},
			visited:          map[string]bool{},
		}
		r.accounts[userID] = st
	}
	return st
}

func (r *fakeAccountRepo) snapshot(userID string, st *accountState) *domain.Account {
	acc := domain.NewAccount(userID)
	acc.TotalPoints = st.totalPoints
	acc.SpinPoints = st.spinPoints
	acc.SpendPoints = st.spendPoints
	acc.Punches = st.punches
	acc.Tier = st.tier
	acc.PhoneNumber = st.phoneNumber
	for k, v := range st.restaurantPoints {
		acc.RestaurantPoints[k] = v
	}
	for rest, code := range st.referralCodes {
		acc.ReferralCodes = append(acc.ReferralCodes, domain.ReferralCode{RestaurantID: rest, Code: code})
	}
	acc.ReferredBy = st.referredBy
	acc.ReferralsMade = append(acc.ReferralsMade, st.referralEdges...)
	for rest := range st.visited {
		acc.VisitedRestaurants = append(acc.VisitedRestaurants, rest)
	}
	for _, e := range st.history {
		if e.Kind == domain.HistorySpin {
			acc.SpinCount++
		}
	}
	return acc
}

func (r *fakeAccountRepo) Get(ctx context.Context, userID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(userID, r.state(userID)), nil
}

func (r *fakeAccountRepo) ApplyDelta(ctx context.Context, userID string, delta domain.Delta) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApplyDelta != nil {
		return nil, r.failApplyDelta
	}
	st := r.state(userID)

	if st.totalPoints+delta.TotalPoints < 0 {
		return nil, domain.ErrInsufficientBalance
	}
	switch {
	case delta.ResetPunches:
		st.punches = 0
	case delta.Punches != 0:
		if st.punches+delta.Punches < 0 {
			return nil, domain.ErrInsufficientPunches
		}
		st.punches += delta.Punches
	}
	st.totalPoints += delta.TotalPoints
	st.spinPoints += delta.SpinPoints
	st.spendPoints += delta.SpendPoints
	if delta.RestaurantID != "" && delta.TotalPoints != 0 {
		st.restaurantPoints[delta.RestaurantID] += delta.TotalPoints
	}
	st.tier = domain.TierFor(st.totalPoints)
	st.history = append(st.history, delta.History...)

	return r.snapshot(userID, st), nil
}

func (r *fakeAccountRepo) AppendHistory(ctx context.Context, userID string, entries ...domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(userID)
	st.history = append(st.history, entries...)
	return nil
}

func (r *fakeAccountRepo) EnsureReferralCode(ctx context.Context, userID, restaurantID, code string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(userID)
	if existing, ok := st.referralCodes[restaurantID]; ok {
		return existing, nil
	}
	st.referralCodes[restaurantID] = code
	return code, nil
}

func (r *fakeAccountRepo) FindByReferralCode(ctx context.Context, code, restaurantID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, st := range r.accounts {
		if st.referralCodes[restaurantID] == code {
			return r.snapshot(userID, st), nil
		}
	}
	return nil, domain.ErrInvalidReferralCode
}

func (r *fakeAccountRepo) SetReferredBy(ctx context.Context, userID string, ref domain.ReferredBy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(userID)
	if st.referredBy != nil {
		return domain.ErrAlreadyReferred
	}
	st.referredBy = &ref
	return nil
}

func (r *fakeAccountRepo) AddReferralEdge(ctx context.Context, referrerID, restaurantID, referredID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(referrerID)
	for _, e := range st.referralEdges {
		if e.RestaurantID == restaurantID && e.ReferredUserID == referredID {
			return nil
		}
	}
	st.referralEdges = append(st.referralEdges, domain.ReferralEdge{
		RestaurantID:   restaurantID,
		ReferredUserID: referredID,
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}

func (r *fakeAccountRepo) SetPhoneNumber(ctx context.Context, userID, phoneNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(userID).phoneNumber = phoneNumber
	return nil
}

func (r *fakeAccountRepo) AddVisitedRestaurant(ctx context.Context, userID, restaurantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(userID).visited[restaurantID] = true
	return nil
}

func (r *fakeAccountRepo) ForEachRestaurantAccount(ctx context.Context, restaurantID string, fn func(*domain.Account) error) error {
	r.mu.Lock()
	var snapshots []*domain.Account
	for userID, st := range r.accounts {
		if st.restaurantPoints[restaurantID] > 0 {
			snapshots = append(snapshots, r.snapshot(userID, st))
		}
	}
	r.mu.Unlock()
	for _, acc := range snapshots {
		if err := fn(acc); err != nil {
			return err
		}
	}
	return nil
}

// historyOf 是测试用的只读访问。
func (r *fakeAccountRepo) historyOf(userID string) []domain.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(userID)
	out := make([]domain.HistoryEntry, len(st.history))
	copy(out, st.history)
	return out
}

// fakeCouponRepo 用锁内 check-and-set 模拟券状态翻转的原子性。
type fakeCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]*domain.Coupon

	failCreate error
}

func newFakeCouponRepo() *fakeCouponRepo {
	return &fakeCouponRepo{coupons: map[string]*domain.Coupon{}}
}

func (r *fakeCouponRepo) Create(ctx context.Context, coupon *domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	cp := *coupon
	r.coupons[coupon.CouponCode] = &cp
	return nil
}

func (r *fakeCouponRepo) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCouponRepo) Redeem(ctx context.Context, code, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return domain.ErrCouponNotFound
	}
	if err := c.CanRedeem(userID, now); err != nil {
		return err
	}
	c.IsUsed = true
	redeemedAt := now
	c.RedeemedAt = &redeemedAt
	return nil
}

func (r *fakeCouponRepo) Delete(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.coupons, code)
	return nil
}

func (r *fakeCouponRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Coupon
	for _, c := range r.coupons {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCouponRepo) ListByRestaurant(ctx context.Context, restaurantID string) ([]*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Coupon
	for _, c := range r.coupons {
		if c.RestaurantID == restaurantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCouponRepo) UpdateExpiry(ctx context.Context, code string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return domain.ErrCouponNotFound
	}
	c.ExpiryDate = expiry
	return nil
}

// fakeSettingsRepo 持一份固定配置。
type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*domain.Settings
	history  map[string][]domain.SettingsSnapshot
}

func newFakeSettingsRepo(settings ...*domain.Settings) *fakeSettingsRepo {
	r := &fakeSettingsRepo{
		settings: map[string]*domain.Settings{},
		history:  map[string][]domain.SettingsSnapshot{},
	}
	for _, s := range settings {
		r.settings[s.RestaurantID] = s
	}
	return r
}

func (r *fakeSettingsRepo) Get(ctx context.Context, restaurantID string) (*domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[restaurantID]
	if !ok {
		return nil, domain.ErrRestaurantNotFound
	}
	return s, nil
}

func (r *fakeSettingsRepo) Create(ctx context.Context, settings *domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settings.RestaurantID] = settings
	r.history[settings.RestaurantID] = append(r.history[settings.RestaurantID], domain.SettingsSnapshot{
		PointsPerRupee:   settings.PointsPerRupee,
		RewardThresholds: settings.Thresholds.Encode(),
		CreatedAt:        time.Now().UTC(),
	})
	return nil
}

func (r *fakeSettingsRepo) UpdateThresholds(ctx context.Context, restaurantID string, pointsPerRupee float64, thresholds domain.Thresholds) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[restaurantID]
	if !ok {
		return domain.ErrRestaurantNotFound
	}
	s.PointsPerRupee = pointsPerRupee
	s.Thresholds = thresholds
	r.history[restaurantID] = append(r.history[restaurantID], domain.SettingsSnapshot{
		PointsPerRupee:   pointsPerRupee,
		RewardThresholds: thresholds.Encode(),
		CreatedAt:        time.Now().UTC(),
	})
	return nil
}

func (r *fakeSettingsRepo) History(ctx context.Context, restaurantID string) ([]domain.SettingsSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[restaurantID], nil
}

// fakeAuditRepo 收集审计条目。
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *fakeAuditRepo) Append(ctx context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// fakeNotifier 收集出站事件。
type fakeNotifier struct {
	mu     sync.Mutex
	events []*domain.NotificationEvent
}

func (n *fakeNotifier) Send(ctx context.Context, event *domain.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func (n *fakeNotifier) last() *domain.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return nil
	}
	return n.events[len(n.events)-1]
}

// fakeSpinGuard 可配置是否放行。
type fakeSpinGuard struct {
	allow bool
}

func (g *fakeSpinGuard) TryAcquire(ctx context.Context, userID, restaurantID string) (bool, error) {
	return g.allow, nil
}

// allowAllRules 是不设规则的规则引擎。
type allowAllRules struct{}

func (allowAllRules) Evaluate(ruleDefinition string, fact domain.ClaimFact) (bool, error) {
	return true, nil
}

// noopLock 在单测里代替 ZooKeeper。
type noopLock struct{}

func (noopLock) Lock() error   { return nil }
func (noopLock) Unlock() error { return nil }

type noopLockFactory struct{}

func (noopLockFactory) NewLock(resourceID string) port.DistributedLock { return noopLock{} }

// newTestService 组装一个全 fake 的应用服务。
func newTestService(accounts *fakeAccountRepo, coupons *fakeCouponRepo, settings *fakeSettingsRepo) (*LoyaltyApplicationService, *fakeNotifier) {
	notifier := &fakeNotifier{}
	svc := NewLoyaltyApplicationService(
		accounts, coupons, settings, &fakeAuditRepo{},
		noop.NewTracerProvider().Tracer("test"),
		notifier,
		&fakeSpinGuard{allow: true},
		allowAllRules{},
		noopLockFactory{},
		"https://app.restrohub.example",
	)
	return svc, notifier
}

// testCouponFor 签发一张明天过期的有效券。
func testCouponFor(code, userID string) *domain.Coupon {
	return &domain.Coupon{
		CouponCode:   code,
		UserID:       userID,
		RestaurantID: "rest-1",
		Offer:        "Free Coffee",
		ExpiryDate:   time.Now().UTC().AddDate(0, 0, 1),
		CreatedAt:    time.Now().UTC(),
	}
}

// testSettings 是多数用例共用的餐厅配置。
func testSettings() *domain.Settings {
	return &domain.Settings{
		RestaurantID:      "rest-1",
		Name:              "Cafe Uno",
		Offers:            []string{"Free Coffee", "Free Dessert"},
		PointsPerRupee:    1,
		SpinPointsPerSpin: 10,
		CouponExpiryDays:  30,
		Thresholds:        domain.Thresholds{100: "10%", 300: "20%"},
	}
}
