//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
	"careera-payments/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func cloneTx(t *model.PaymentTransaction) *model.PaymentTransaction {
	cp := *t
	if t.ProviderMetadata != nil {
		cp.ProviderMetadata = make(map[string]string, len(t.ProviderMetadata))
		for k, v := range t.ProviderMetadata {
			cp.ProviderMetadata[k] = v
		}
	}
	return &cp
}

// =============================
// Repositories
// =============================

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu     sync.Mutex
	data   map[int64]*model.PaymentTransaction
	byRef  map[string]int64
	nextID int64

	CreateFunc           func(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error
	FindByIDFunc         func(ctx context.Context, tx repository.Tx, id int64) (*model.PaymentTransaction, error)
	UpdateIfStatusInFunc func(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction, from []model.PaymentStatus) (bool, error)
	StatsFunc            func(ctx context.Context, tx repository.Tx, since time.Time) (*model.PaymentStats, error)

	Calls struct {
		Create           int
		UpdateIfStatusIn int
		SetSubscription  int
	}
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[int64]*model.PaymentTransaction{}, byRef: map[string]int64{}}
}

// Put stores p as-is, assigning an id when p has none.
func (r *MockPaymentRepo) Put(p *model.PaymentTransaction) *model.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	} else if p.ID > r.nextID {
		r.nextID = p.ID
	}
	r.data[p.ID] = cloneTx(p)
	r.byRef[p.ProviderReference] = p.ID
	return p
}

// Get returns a copy of the stored row, or nil.
func (r *MockPaymentRepo) Get(id int64) *model.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		return cloneTx(p)
	}
	return nil
}

func (r *MockPaymentRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *MockPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error {
	r.mu.Lock()
	r.Calls.Create++
	r.mu.Unlock()
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, p)
	}
	r.mu.Lock()
	_, dup := r.byRef[p.ProviderReference]
	r.mu.Unlock()
	if dup {
		return domain.ErrAlreadyExists
	}
	r.Put(p)
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.PaymentTransaction, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	if p := r.Get(id); p != nil {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByReference(ctx context.Context, tx repository.Tx, ref string) (*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byRef[ref]; ok {
		return cloneTx(r.data[id]), nil
	}
	return nil, domain.ErrNotFound
}

// UpdateIfStatusIn is an atomic compare-and-set on the stored status.
func (r *MockPaymentRepo) UpdateIfStatusIn(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction, from []model.PaymentStatus) (bool, error) {
	r.mu.Lock()
	r.Calls.UpdateIfStatusIn++
	r.mu.Unlock()
	if r.UpdateIfStatusInFunc != nil {
		return r.UpdateIfStatusInFunc(ctx, tx, p, from)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[p.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, s := range from {
		if cur.Status == s {
			r.data[p.ID] = cloneTx(p)
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) SetSubscription(ctx context.Context, tx repository.Tx, id, subscriptionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls.SetSubscription++
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionID = &subscriptionID
	return nil
}

func (r *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, offset, limit int) ([]*model.PaymentTransaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.PaymentTransaction
	for _, p := range r.data {
		if p.UserID == userID {
			all = append(all, cloneTx(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MockPaymentRepo) ListOpenOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, p := range r.data {
		if (p.Status == model.PaymentStatusPending || p.Status == model.PaymentStatusProcessing) && p.CreatedAt.Before(cutoff) {
			out = append(out, cloneTx(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentRepo) Stats(ctx context.Context, tx repository.Tx, since time.Time) (*model.PaymentStats, error) {
	if r.StatsFunc != nil {
		return r.StatsFunc(ctx, tx, since)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := model.NewPaymentStats(since)
	for _, p := range r.data {
		if p.CreatedAt.Before(since) {
			continue
		}
		st.TotalTransactions++
		st.ByStatus[p.Status]++
		st.ByProvider[p.Provider]++
		st.ByProduct[p.ProductType]++
		if p.Status == model.PaymentStatusCompleted {
			st.Revenue[p.Currency] = st.Revenue[p.Currency].Add(p.Amount)
		}
	}
	return st, nil
}

// ---- Mock RefundRepository ----

type MockRefundRepo struct {
	mu     sync.Mutex
	data   map[int64]*model.RefundRequest
	nextID int64

	UpdateFunc func(ctx context.Context, tx repository.Tx, r *model.RefundRequest) error
}

var _ repository.RefundRepository = (*MockRefundRepo)(nil)

func NewMockRefundRepo() *MockRefundRepo {
	return &MockRefundRepo{data: map[int64]*model.RefundRequest{}}
}

func (m *MockRefundRepo) Create(ctx context.Context, tx repository.Tx, r *model.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.data[r.ID] = &cp
	return nil
}

func (m *MockRefundRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRefundRepo) Update(ctx context.Context, tx repository.Tx, r *model.RefundRequest) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[r.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *r
	m.data[r.ID] = &cp
	return nil
}

func (m *MockRefundRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// ---- Mock UserRepository / RoleRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User

	UpdateRoleFunc func(ctx context.Context, tx repository.Tx, userID, roleID int64) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	m := &MockUserRepo{users: map[int64]*model.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) UpdateRole(ctx context.Context, tx repository.Tx, userID, roleID int64) error {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, tx, userID, roleID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.RoleID = &roleID
	return nil
}

func (m *MockUserRepo) RoleOf(id int64) *int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u.RoleID
	}
	return nil
}

type MockRoleRepo struct {
	mu     sync.Mutex
	roles  map[string]*model.Role
	nextID int64

	FindByNameFunc func(ctx context.Context, tx repository.Tx, name string) (*model.Role, error)
}

var _ repository.RoleRepository = (*MockRoleRepo)(nil)

func NewMockRoleRepo() *MockRoleRepo {
	return &MockRoleRepo{roles: map[string]*model.Role{}}
}

func (m *MockRoleRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.Role, error) {
	if m.FindByNameFunc != nil {
		return m.FindByNameFunc(ctx, tx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRoleRepo) Create(ctx context.Context, tx repository.Tx, r *model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.roles[r.Name] = &cp
	return nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu     sync.Mutex
	byUser map[int64]*model.UserSubscription
	nextID int64

	SaveFunc func(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error

	Saves int
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byUser: map[int64]*model.UserSubscription{}}
}

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if s.ID == 0 {
		m.nextID++
		s.ID = m.nextID
	}
	cp := *s
	m.byUser[s.UserID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) Of(userID int64) *model.UserSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byUser[userID]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (m *MockSubscriptionRepo) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saves
}

// ---- Mock SubscriptionPlanRepository ----

type MockPlanRepo struct {
	mu     sync.Mutex
	plans  []*model.SubscriptionPlan
	nextID int64

	ListAllFunc func(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error)
}

var _ repository.SubscriptionPlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo(plans ...*model.SubscriptionPlan) *MockPlanRepo {
	m := &MockPlanRepo{}
	for _, p := range plans {
		_ = m.Save(context.Background(), repository.NoTX, p)
	}
	return m
}

func (m *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	}
	cp := *p
	m.plans = append(m.plans, &cp)
	return nil
}

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.SubscriptionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.SubscriptionPlan, 0, len(m.plans))
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockPlanRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plans)
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc    func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	SavepointFunc func(ctx context.Context, tx repository.Tx, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

func (m *MockTxManager) Savepoint(ctx context.Context, tx repository.Tx, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.SavepointFunc != nil {
		return m.SavepointFunc(ctx, tx, fn)
	}
	return fn(ctx, tx)
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentProviderStrategy ----

type MockStrategy struct {
	mu       sync.Mutex
	provider model.PaymentProvider

	CreateSessionFunc    func(ctx context.Context, p adapter.CreateSessionParams) (*adapter.SessionResult, error)
	VerifyFunc           func(payload []byte, signature, secret string) bool
	ParseFunc            func(payload []byte) (*adapter.WebhookPaymentInfo, error)
	GetPaymentStatusFunc func(ctx context.Context, ref string) (*adapter.ProviderPaymentStatus, error)
	ProcessRefundFunc    func(ctx context.Context, p adapter.RefundParams) (*adapter.RefundResult, error)

	Calls struct {
		CreateSession []adapter.CreateSessionParams
		Status        int
		Refund        []adapter.RefundParams
	}
}

var _ adapter.PaymentProviderStrategy = (*MockStrategy)(nil)

func NewMockStrategy(p model.PaymentProvider) *MockStrategy {
	return &MockStrategy{provider: p}
}

func (m *MockStrategy) Provider() model.PaymentProvider { return m.provider }

func (m *MockStrategy) CreateSession(ctx context.Context, p adapter.CreateSessionParams) (*adapter.SessionResult, error) {
	m.mu.Lock()
	m.Calls.CreateSession = append(m.Calls.CreateSession, p)
	m.mu.Unlock()
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, p)
	}
	return &adapter.SessionResult{
		Success:           true,
		ProviderReference: "cs_test_" + p.IdempotencyKey,
		CheckoutURL:       "https://checkout.example.test/" + p.IdempotencyKey,
		ProviderMetadata:  map[string]string{"mode": "subscription"},
	}, nil
}

func (m *MockStrategy) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature, secret)
	}
	return signature == "valid"
}

func (m *MockStrategy) ParseWebhookPayload(payload []byte) (*adapter.WebhookPaymentInfo, error) {
	if m.ParseFunc != nil {
		return m.ParseFunc(payload)
	}
	return nil, domain.ErrExtractionFailed
}

func (m *MockStrategy) GetPaymentStatus(ctx context.Context, ref string) (*adapter.ProviderPaymentStatus, error) {
	m.mu.Lock()
	m.Calls.Status++
	m.mu.Unlock()
	if m.GetPaymentStatusFunc != nil {
		return m.GetPaymentStatusFunc(ctx, ref)
	}
	at := testNow.Add(-time.Minute)
	return &adapter.ProviderPaymentStatus{
		Status:        model.PaymentStatusCompleted,
		Amount:        decimal.NewFromInt(30),
		Currency:      model.CurrencyEGP,
		PaymentMethod: model.MethodCreditCard,
		CompletedAt:   &at,
		Metadata:      map[string]string{"payment_intent_id": "pi_1"},
	}, nil
}

func (m *MockStrategy) ProcessRefund(ctx context.Context, p adapter.RefundParams) (*adapter.RefundResult, error) {
	m.mu.Lock()
	m.Calls.Refund = append(m.Calls.Refund, p)
	m.mu.Unlock()
	if m.ProcessRefundFunc != nil {
		return m.ProcessRefundFunc(ctx, p)
	}
	return &adapter.RefundResult{Success: true, RefundReference: "re_1", ProcessedAt: testNow}, nil
}

func (m *MockStrategy) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls.Status
}

// ---- Mock StrategyResolver ----

type MockResolver struct {
	strategies map[model.PaymentProvider]adapter.PaymentProviderStrategy
}

var _ adapter.StrategyResolver = (*MockResolver)(nil)

func NewMockResolver(ss ...adapter.PaymentProviderStrategy) *MockResolver {
	r := &MockResolver{strategies: map[model.PaymentProvider]adapter.PaymentProviderStrategy{}}
	for _, s := range ss {
		r.strategies[s.Provider()] = s
	}
	return r
}

func (r *MockResolver) GetStrategy(p model.PaymentProvider) (adapter.PaymentProviderStrategy, error) {
	s, ok := r.strategies[p]
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	return s, nil
}

func (r *MockResolver) IsProviderSupported(p model.PaymentProvider) bool {
	_, ok := r.strategies[p]
	return ok
}

func (r *MockResolver) ListSupportedProviders() []model.PaymentProvider {
	out := make([]model.PaymentProvider, 0, len(r.strategies))
	for p := range r.strategies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
