//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu    sync.Mutex
	data  map[string]*model.Payment // by id
	byRef map[string]string         // tenant|ref -> id

	// hasSale is consulted by ListCompletedWithoutSale.
	hasSale func(paymentID string) bool

	InsertFunc         func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	UpdateStatusIfFunc func(ctx context.Context, tx repository.Tx, id string, from, to model.PaymentStatus, gatewayTxID *string, completedAt *time.Time) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}, byRef: map[string]string{}}
}

func refKey(tenantID, ref string) string { return tenantID + "|" + ref }

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	if p.GatewayTransactionID != nil {
		v := *p.GatewayTransactionID
		cp.GatewayTransactionID = &v
	}
	return &cp
}

func (r *MockPaymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := refKey(p.TenantID, p.ExternalReference)
	if _, ok := r.byRef[k]; ok {
		return domain.ErrAlreadyExists
	}
	r.data[p.ID] = clonePayment(p)
	r.byRef[k] = p.ID
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *MockPaymentRepo) FindByReference(ctx context.Context, tx repository.Tx, tenantID, reference string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[refKey(tenantID, reference)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(r.data[id]), nil
}

func (r *MockPaymentRepo) FindByGatewayTransaction(ctx context.Context, tx repository.Tx, tenantID string, gateway model.Gateway, gatewayTxID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.TenantID == tenantID && p.Gateway == gateway && p.GatewayTxID() == gatewayTxID {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, id string, from, to model.PaymentStatus, gatewayTxID *string, completedAt *time.Time) (bool, error) {
	if r.UpdateStatusIfFunc != nil {
		return r.UpdateStatusIfFunc(ctx, tx, id, from, to, gatewayTxID, completedAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	if completedAt != nil {
		p.CompletedAt = completedAt
	}
	if gatewayTxID != nil && p.GatewayTransactionID == nil {
		v := *gatewayTxID
		p.GatewayTransactionID = &v
	}
	return true, nil
}

func (r *MockPaymentRepo) AttachGatewayResult(ctx context.Context, tx repository.Tx, id, gatewayTxID string, presentation json.RawMessage, expiresAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.GatewayTransactionID != nil {
		return false, nil
	}
	p.GatewayTransactionID = &gatewayTxID
	p.Presentation = presentation
	p.ExpiresAt = expiresAt
	return true, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.GatewayTransactionID != nil && p.CreatedAt.Before(olderThan) {
			out = append(out, clonePayment(p))
		}
	}
	return limitPayments(out, limit), nil
}

func (r *MockPaymentRepo) ListUnsubmittedPending(ctx context.Context, tx repository.Tx, createdBefore time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.GatewayTransactionID == nil && p.CreatedAt.Before(createdBefore) {
			out = append(out, clonePayment(p))
		}
	}
	return limitPayments(out, limit), nil
}

// backdate shifts a payment's creation (and offer expiry, when set) into the past.
func (r *MockPaymentRepo) backdate(id string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.data[id]
	p.CreatedAt = p.CreatedAt.Add(-d)
	if p.ExpiresAt != nil {
		e := p.ExpiresAt.Add(-d)
		p.ExpiresAt = &e
	}
}

func (r *MockPaymentRepo) ListCompletedWithoutSale(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status != model.PaymentStatusCompleted {
			continue
		}
		if r.hasSale != nil && r.hasSale(p.ID) {
			continue
		}
		out = append(out, clonePayment(p))
	}
	return limitPayments(out, limit), nil
}

func limitPayments(ps []*model.Payment, limit int) []*model.Payment {
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
	if limit > 0 && len(ps) > limit {
		return ps[:limit]
	}
	return ps
}

// ---- Mock SaleRepository ----

type MockSaleRepo struct {
	mu          sync.Mutex
	data        map[string]*model.Sale // by id
	byPayment   map[string]string
	revocations map[string]*model.AccessRevocation
}

var _ repository.SaleRepository = (*MockSaleRepo)(nil)

func NewMockSaleRepo() *MockSaleRepo {
	return &MockSaleRepo{data: map[string]*model.Sale{}, byPayment: map[string]string{}, revocations: map[string]*model.AccessRevocation{}}
}

func (r *MockSaleRepo) Insert(ctx context.Context, tx repository.Tx, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPayment[s.PaymentID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	r.data[s.ID] = &cp
	r.byPayment[s.PaymentID] = s.ID
	return nil
}

func (r *MockSaleRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPayment[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.data[id]
	return &cp, nil
}

func (r *MockSaleRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSaleRepo) ListExpiredUnrevoked(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Sale
	for _, s := range r.data {
		if s.AccessExpiresAt == nil || s.AccessExpiresAt.After(now) {
			continue
		}
		if _, done := r.revocations[s.ID]; done {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockSaleRepo) SaveRevocation(ctx context.Context, tx repository.Tx, rev *model.AccessRevocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rev
	r.revocations[rev.SaleID] = &cp
	return nil
}

func (r *MockSaleRepo) HasSale(paymentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byPayment[paymentID]
	return ok
}

func (r *MockSaleRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// ---- Mock InviteDeliveryRepository ----

type MockDeliveryRepo struct {
	mu   sync.Mutex
	data map[string]*model.InviteDelivery // by sale id
}

var _ repository.InviteDeliveryRepository = (*MockDeliveryRepo)(nil)

func NewMockDeliveryRepo() *MockDeliveryRepo {
	return &MockDeliveryRepo{data: map[string]*model.InviteDelivery{}}
}

func (r *MockDeliveryRepo) Insert(ctx context.Context, tx repository.Tx, d *model.InviteDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[d.SaleID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *d
	r.data[d.SaleID] = &cp
	return nil
}

func (r *MockDeliveryRepo) FindBySaleID(ctx context.Context, tx repository.Tx, saleID string) (*model.InviteDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.data[saleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MockDeliveryRepo) Claim(ctx context.Context, tx repository.Tx, saleID string, now, staleBefore time.Time) (*model.InviteDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.data[saleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	claimable := d.Status == model.DeliveryPending ||
		(d.Status == model.DeliverySending && d.ClaimedAt != nil && d.ClaimedAt.Before(staleBefore))
	if !claimable {
		return nil, domain.ErrDeliveryClaimed
	}
	d.Status = model.DeliverySending
	d.ClaimedAt = &now
	cp := *d
	return &cp, nil
}

func (r *MockDeliveryRepo) SetLink(ctx context.Context, tx repository.Tx, saleID, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.data[saleID]; ok && d.InviteLink == "" {
		d.InviteLink = link
	}
	return nil
}

func (r *MockDeliveryRepo) MarkSent(ctx context.Context, tx repository.Tx, saleID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.data[saleID]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = model.DeliverySent
	d.SentAt = &at
	return nil
}

func (r *MockDeliveryRepo) Release(ctx context.Context, tx repository.Tx, saleID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.data[saleID]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = model.DeliveryPending
	d.Attempts++
	d.LastError = lastError
	d.ClaimedAt = nil
	return nil
}

func (r *MockDeliveryRepo) ListRetryable(ctx context.Context, tx repository.Tx, staleBefore time.Time, limit int) ([]*model.InviteDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.InviteDelivery
	for _, d := range r.data {
		if d.Status == model.DeliveryPending ||
			(d.Status == model.DeliverySending && d.ClaimedAt != nil && d.ClaimedAt.Before(staleBefore)) {
			cp := *d
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Mock PlanRepository ----

type MockPlanRepo struct {
	mu   sync.Mutex
	data map[string]*model.Plan
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo { return &MockPlanRepo{data: map[string]*model.Plan{}} }

func (r *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *plan
	r.data[plan.ID] = &cp
	return nil
}

func (r *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPlanRepo) ListActiveByTenant(ctx context.Context, tx repository.Tx, tenantID string) ([]*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Plan
	for _, p := range r.data {
		if p.TenantID == tenantID && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

// ---- Mock TenantRepository ----

type MockTenantRepo struct {
	mu   sync.Mutex
	data map[string]*model.Tenant

	invalidated int

	// stored status at each Invalidate call
	invalidatedAt []model.ActivationStatus
}

var _ repository.TenantRepository = (*MockTenantRepo)(nil)

func NewMockTenantRepo() *MockTenantRepo { return &MockTenantRepo{data: map[string]*model.Tenant{}} }

func cloneTenant(t *model.Tenant) *model.Tenant {
	cp := *t
	cp.OwnedGroups = append([]int64(nil), t.OwnedGroups...)
	return &cp
}

func (r *MockTenantRepo) Save(ctx context.Context, tx repository.Tx, t *model.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.data {
		if ex.Credential == t.Credential && ex.ID != t.ID {
			return domain.ErrAlreadyExists
		}
	}
	r.data[t.ID] = cloneTenant(t)
	return nil
}

func (r *MockTenantRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTenant(t), nil
}

func (r *MockTenantRepo) FindByCredential(ctx context.Context, tx repository.Tx, credential string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.data {
		if t.Credential == credential {
			return cloneTenant(t), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockTenantRepo) SetActivationStatus(ctx context.Context, tx repository.Tx, id string, status model.ActivationStatus, activatedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.ActivationStatus = status
	t.ActivatedAt = activatedAt
	return nil
}

func (r *MockTenantRepo) AddGroup(ctx context.Context, tx repository.Tx, id string, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !t.OwnsGroup(groupID) {
		t.OwnedGroups = append(t.OwnedGroups, groupID)
	}
	return nil
}

// Invalidate makes the mock look like the cached repository.
func (r *MockTenantRepo) Invalidate(ctx context.Context, t *model.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated++
	if cur, ok := r.data[t.ID]; ok {
		r.invalidatedAt = append(r.invalidatedAt, cur.ActivationStatus)
	}
}

// ---- Mock ActivationCodeRepository ----

type MockActivationCodeRepo struct {
	mu   sync.Mutex
	data map[string]*model.ActivationCode

	InsertFunc func(ctx context.Context, tx repository.Tx, code *model.ActivationCode) error
}

var _ repository.ActivationCodeRepository = (*MockActivationCodeRepo)(nil)

func NewMockActivationCodeRepo() *MockActivationCodeRepo {
	return &MockActivationCodeRepo{data: map[string]*model.ActivationCode{}}
}

func (r *MockActivationCodeRepo) Insert(ctx context.Context, tx repository.Tx, code *model.ActivationCode) error {
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, tx, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[code.Code]; ok {
		return domain.ErrAlreadyExists
	}
	// void earlier unused codes of the tenant
	for k, c := range r.data {
		if c.TenantID == code.TenantID && c.UsedAt == nil {
			delete(r.data, k)
		}
	}
	cp := *code
	r.data[code.Code] = &cp
	return nil
}

func (r *MockActivationCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.data[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MockActivationCodeRepo) MarkUsed(ctx context.Context, tx repository.Tx, code string, usedBy int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.data[code]
	if !ok || c.UsedAt != nil || !now.Before(c.ExpiresAt) {
		return false, nil
	}
	c.UsedAt = &now
	c.UsedBy = &usedBy
	return true, nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu      sync.Mutex
	name    model.Gateway
	calls   int
	statusF map[string]model.PaymentStatus

	CreateFunc  func(ctx context.Context, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error)
	FetchFunc   func(ctx context.Context, id string) (model.PaymentStatus, error)
	WebhookFunc func(ctx context.Context, req adapter.WebhookRequest) (adapter.WebhookEvent, error)

	LastRequest adapter.CreatePaymentRequest
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func NewMockGateway(name model.Gateway) *MockGateway {
	return &MockGateway{name: name, statusF: map[string]model.PaymentStatus{}}
}

func (g *MockGateway) Name() model.Gateway { return g.name }

func (g *MockGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	g.mu.Lock()
	g.calls++
	g.LastRequest = req
	n := g.calls
	g.mu.Unlock()
	if g.CreateFunc != nil {
		return g.CreateFunc(ctx, req)
	}
	return adapter.CreatePaymentResult{
		ProviderPaymentID: fmt.Sprintf("%s-%d", g.name, n),
		Presentation:      json.RawMessage(fmt.Sprintf(`{"qr_code":"PIX-%d"}`, n)),
	}, nil
}

func (g *MockGateway) FetchStatus(ctx context.Context, id string) (model.PaymentStatus, error) {
	if g.FetchFunc != nil {
		return g.FetchFunc(ctx, id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.statusF[id]; ok {
		return s, nil
	}
	return model.PaymentStatusPending, nil
}

func (g *MockGateway) ParseWebhook(ctx context.Context, req adapter.WebhookRequest) (adapter.WebhookEvent, error) {
	if g.WebhookFunc != nil {
		return g.WebhookFunc(ctx, req)
	}
	var ev struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if ev.Status == "" {
		return adapter.WebhookEvent{}, domain.ErrIgnoredEvent
	}
	return adapter.WebhookEvent{ProviderPaymentID: ev.ID, Status: model.PaymentStatus(ev.Status), Reference: ev.Reference}, nil
}

func (g *MockGateway) SetStatus(id string, s model.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusF[id] = s
}

func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// ---- Mock GatewayRegistry ----

type MockRegistry map[model.Gateway]adapter.PaymentGateway

var _ adapter.GatewayRegistry = MockRegistry(nil)

func (m MockRegistry) Get(name model.Gateway) (adapter.PaymentGateway, error) {
	g, ok := m[name]
	if !ok {
		return nil, domain.ErrUnsupportedGateway
	}
	return g, nil
}

func (m MockRegistry) Names() []model.Gateway {
	out := make([]model.Gateway, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ---- Mock Messenger ----

type sentMessage struct {
	Credential string
	UserID     int64
	Text       string
}

type MockMessenger struct {
	mu       sync.Mutex
	Invites  []string
	Sent     []sentMessage
	Revoked  []int64
	failSend int // number of SendMessage calls to fail before succeeding

	InviteErr error
	RevokeErr error
}

var _ adapter.Messenger = (*MockMessenger)(nil)

func (m *MockMessenger) CreateSingleUseInvite(ctx context.Context, credential string, groupID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InviteErr != nil {
		return "", m.InviteErr
	}
	link := fmt.Sprintf("https://t.me/+invite%d_%d", groupID, len(m.Invites)+1)
	m.Invites = append(m.Invites, link)
	return link, nil
}

func (m *MockMessenger) SendMessage(ctx context.Context, credential string, userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend > 0 {
		m.failSend--
		return errors.New("telegram: 502 bad gateway")
	}
	m.Sent = append(m.Sent, sentMessage{Credential: credential, UserID: userID, Text: text})
	return nil
}

func (m *MockMessenger) SendButtons(ctx context.Context, credential string, userID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, credential, userID, text)
}

func (m *MockMessenger) RevokeMembership(ctx context.Context, credential string, groupID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RevokeErr != nil {
		return m.RevokeErr
	}
	m.Revoked = append(m.Revoked, userID)
	return nil
}

func (m *MockMessenger) InviteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Invites)
}

func (m *MockMessenger) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// =============================
// Infra helpers for tests
// =============================

// inlinePool runs submitted tasks synchronously so assertions see their effects.
type inlinePool struct {
	refuse bool
	errs   []error
}

func (p *inlinePool) Submit(task func(ctx context.Context) error) error {
	if p.refuse {
		return errors.New("pool saturated")
	}
	if err := task(context.Background()); err != nil {
		p.errs = append(p.errs, err)
	}
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
