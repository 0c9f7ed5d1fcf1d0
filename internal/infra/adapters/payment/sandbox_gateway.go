package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SandboxGateway)(nil)

// SandboxGateway is an in-memory gateway for development. Payments stay pending
// until Approve (or SetStatus) is called; the result is then observed through
// FetchStatus like any other provider.
type SandboxGateway struct {
	mu      sync.Mutex
	seq     int64
	secret  string
	charges map[string]model.PaymentStatus // provider id -> status
}

func NewSandboxGateway(webhookSecret string) *SandboxGateway {
	return &SandboxGateway{secret: webhookSecret, charges: make(map[string]model.PaymentStatus)}
}

func (g *SandboxGateway) Name() model.Gateway { return model.GatewaySandbox }

func (g *SandboxGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("sbx-%d", g.seq)
	g.charges[id] = model.PaymentStatusPending

	pres, _ := json.Marshal(map[string]string{
		"qr_code":   "00020126SANDBOX" + id,
		"reference": req.IdempotencyToken,
		"amount":    req.Amount.StringFixed(2),
	})
	res := adapter.CreatePaymentResult{ProviderPaymentID: id, Presentation: pres}
	if req.TTL > 0 {
		exp := time.Now().UTC().Add(req.TTL)
		res.ExpiresAt = &exp
	}
	return res, nil
}

func (g *SandboxGateway) FetchStatus(ctx context.Context, providerPaymentID string) (model.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.charges[providerPaymentID]
	if !ok {
		return "", &domain.GatewayError{Gateway: string(g.Name()), Op: "fetch_status", Err: fmt.Errorf("charge %s not found", providerPaymentID)}
	}
	return st, nil
}

// ParseWebhook accepts {"id":..,"status":..,"reference":..} using internal status words.
// When a secret is configured the body must carry its HMAC in X-Sandbox-Signature.
func (g *SandboxGateway) ParseWebhook(ctx context.Context, req adapter.WebhookRequest) (adapter.WebhookEvent, error) {
	if !verifyHMAC(g.secret, req.Body, req.Header.Get("X-Sandbox-Signature")) {
		return adapter.WebhookEvent{}, domain.ErrInvalidSignature
	}
	var ev struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	st := model.PaymentStatus(ev.Status)
	if !st.Valid() {
		return adapter.WebhookEvent{}, domain.ErrIgnoredEvent
	}
	if ev.ID == "" && ev.Reference == "" {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: webhook without id", domain.ErrInvalidArgument)
	}
	return adapter.WebhookEvent{ProviderPaymentID: ev.ID, Status: st, Reference: ev.Reference}, nil
}

// Approve simulates the buyer paying the charge.
func (g *SandboxGateway) Approve(providerPaymentID string) error {
	return g.SetStatus(providerPaymentID, model.PaymentStatusCompleted)
}

func (g *SandboxGateway) SetStatus(providerPaymentID string, st model.PaymentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[providerPaymentID]; !ok {
		return domain.ErrNotFound
	}
	g.charges[providerPaymentID] = st
	return nil
}

// Sign returns the signature header value for body, for local webhook testing.
func (g *SandboxGateway) Sign(body []byte) string { return signHMAC(g.secret, body) }
