package payment

import (
	"context"
	"errors"
	"time"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/infra/metrics"
)

// Compile-time check
var _ adapter.PaymentGateway = (*boundedGateway)(nil)

// boundedGateway puts a deadline on every provider call and records its latency.
// A call that runs out of time is reported as a transient GatewayError.
type boundedGateway struct {
	inner   adapter.PaymentGateway
	timeout time.Duration
}

func NewBoundedGateway(inner adapter.PaymentGateway, timeout time.Duration) adapter.PaymentGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &boundedGateway{inner: inner, timeout: timeout}
}

func (b *boundedGateway) Name() model.Gateway { return b.inner.Name() }

func (b *boundedGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	start := time.Now()
	res, err := b.inner.CreatePayment(ctx, req)
	return res, b.finish(ctx, "create_payment", start, err)
}

func (b *boundedGateway) FetchStatus(ctx context.Context, providerPaymentID string) (model.PaymentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	start := time.Now()
	st, err := b.inner.FetchStatus(ctx, providerPaymentID)
	return st, b.finish(ctx, "fetch_status", start, err)
}

func (b *boundedGateway) ParseWebhook(ctx context.Context, req adapter.WebhookRequest) (adapter.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	start := time.Now()
	ev, err := b.inner.ParseWebhook(ctx, req)
	return ev, b.finish(ctx, "parse_webhook", start, err)
}

func (b *boundedGateway) finish(ctx context.Context, op string, start time.Time, err error) error {
	name := string(b.inner.Name())
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result = "timeout"
		err = &domain.GatewayError{Gateway: name, Op: op, Transient: true, Err: err}
	case domain.IsTransientGatewayError(err):
		result = "transient"
	default:
		result = "error"
	}
	metrics.ObserveGatewayCall(name, op, result, time.Since(start))
	return err
}
