// File: internal/infra/adapters/payment/pushinpay_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PushinPayGateway)(nil)

const (
	pushinPayDefaultBaseURL = "https://api.pushinpay.com.br/api"
	pushinPaySignatureHdr   = "X-Pushinpay-Signature"
)

// PushinPayGateway creates PIX charges through the PushinPay REST API.
type PushinPayGateway struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

func NewPushinPayGateway(baseURL, apiKey, webhookSecret string, client *http.Client) (*PushinPayGateway, error) {
	if apiKey == "" {
		return nil, errors.New("pushinpay api key empty")
	}
	if baseURL == "" {
		baseURL = pushinPayDefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pushinpay base url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PushinPayGateway{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        client,
	}, nil
}

func (g *PushinPayGateway) Name() model.Gateway { return model.GatewayPushinPay }

func (g *PushinPayGateway) auth() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+g.apiKey)
	return h
}

type pushinPayCharge struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Value        int64  `json:"value"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	Reference    string `json:"external_reference,omitempty"`
}

// CreatePayment calls POST /pix/cashIn. PushinPay takes the value in cents.
func (g *PushinPayGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	payload := map[string]any{
		"value":              model.AmountCents(req.Amount),
		"webhook_url":        req.NotificationURL,
		"external_reference": req.IdempotencyToken,
	}
	var out pushinPayCharge
	if err := doJSON(ctx, g.client, string(g.Name()), "create_payment", http.MethodPost, g.baseURL+"/pix/cashIn", g.auth(), payload, &out); err != nil {
		return adapter.CreatePaymentResult{}, err
	}
	if out.ID == "" {
		return adapter.CreatePaymentResult{}, &domain.GatewayError{Gateway: string(g.Name()), Op: "create_payment", Err: errors.New("response without id")}
	}

	pres, _ := json.Marshal(map[string]string{
		"qr_code":        out.QRCode,
		"qr_code_base64": out.QRCodeBase64,
	})
	res := adapter.CreatePaymentResult{ProviderPaymentID: out.ID, Presentation: pres}
	if req.TTL > 0 {
		exp := time.Now().UTC().Add(req.TTL)
		res.ExpiresAt = &exp
	}
	return res, nil
}

func (g *PushinPayGateway) FetchStatus(ctx context.Context, providerPaymentID string) (model.PaymentStatus, error) {
	var out pushinPayCharge
	path := g.baseURL + "/transactions/" + url.PathEscape(providerPaymentID)
	if err := doJSON(ctx, g.client, string(g.Name()), "fetch_status", http.MethodGet, path, g.auth(), nil, &out); err != nil {
		return "", err
	}
	st, ok := mapPushinPayStatus(out.Status)
	if !ok {
		return "", &domain.GatewayError{Gateway: string(g.Name()), Op: "fetch_status", Err: fmt.Errorf("unknown status %q", out.Status)}
	}
	return st, nil
}

// ParseWebhook accepts both the evented JSON body
// {"event":"payment.status_changed","data":{"id":..,"status":..}} and the flat
// form/JSON body {"id":..,"status":..}.
func (g *PushinPayGateway) ParseWebhook(ctx context.Context, req adapter.WebhookRequest) (adapter.WebhookEvent, error) {
	if !verifyHMAC(g.webhookSecret, req.Body, req.Header.Get(pushinPaySignatureHdr)) {
		return adapter.WebhookEvent{}, domain.ErrInvalidSignature
	}

	var charge pushinPayCharge
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		charge = pushinPayCharge{ID: form.Get("id"), Status: form.Get("status"), Reference: form.Get("external_reference")}
	} else {
		var body struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			pushinPayCharge
		}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		charge = body.pushinPayCharge
		if body.Event != "" {
			if body.Event != "payment.status_changed" {
				return adapter.WebhookEvent{}, domain.ErrIgnoredEvent
			}
			if err := json.Unmarshal(body.Data, &charge); err != nil {
				return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
			}
		}
	}

	if charge.ID == "" {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: webhook without id", domain.ErrInvalidArgument)
	}
	st, ok := mapPushinPayStatus(charge.Status)
	if !ok {
		return adapter.WebhookEvent{}, domain.ErrIgnoredEvent
	}
	return adapter.WebhookEvent{ProviderPaymentID: charge.ID, Status: st, Reference: charge.Reference}, nil
}

func mapPushinPayStatus(s string) (model.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "pending":
		return model.PaymentStatusPending, true
	case "paid", "approved":
		return model.PaymentStatusCompleted, true
	case "expired", "canceled", "cancelled", "failed":
		return model.PaymentStatusFailed, true
	case "refunded":
		return model.PaymentStatusRefunded, true
	}
	return "", false
}
