package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain/model"
)

// CreatePaymentRequest is what the core asks of a gateway.
type CreatePaymentRequest struct {
	Amount           decimal.Decimal
	Description      string
	BuyerContact     string // e-mail or similar, when the provider needs one
	IdempotencyToken string // the payment's external reference
	TTL              time.Duration
	NotificationURL  string // where the provider should post webhooks
}

// CreatePaymentResult carries the provider id and the data shown to the buyer.
// Presentation is opaque to the core.
type CreatePaymentResult struct {
	ProviderPaymentID string
	Presentation      json.RawMessage
	ExpiresAt         *time.Time
}

// WebhookRequest is the raw inbound notification.
type WebhookRequest struct {
	Body       []byte
	Header     http.Header
	Query      map[string][]string
	RemoteAddr string // client address as seen behind the proxy
}

// WebhookEvent is a parsed notification. Reference may be empty when the
// provider only reports its own id.
type WebhookEvent struct {
	ProviderPaymentID string
	Status            model.PaymentStatus
	Reference         string
}

// PaymentGateway is the hex port for payment providers. Each adapter owns the
// mapping from its provider's status words to model.PaymentStatus; errors from
// provider calls are *domain.GatewayError.
type PaymentGateway interface {
	Name() model.Gateway
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResult, error)
	FetchStatus(ctx context.Context, providerPaymentID string) (model.PaymentStatus, error)
	// ParseWebhook returns domain.ErrIgnoredEvent for notifications that carry no
	// payment status and domain.ErrInvalidSignature when authentication fails.
	ParseWebhook(ctx context.Context, req WebhookRequest) (WebhookEvent, error)
}

// GatewayRegistry resolves a gateway by name.
type GatewayRegistry interface {
	Get(name model.Gateway) (PaymentGateway, error)
	Names() []model.Gateway
}
