// File: internal/infra/adapters/payment/mercadopago_gateway.go
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MercadoPagoGateway)(nil)

const (
	mercadoPagoDefaultBaseURL = "https://api.mercadopago.com"
	mercadoPagoTimeLayout     = "2006-01-02T15:04:05.000-07:00"
)

// MercadoPagoGateway creates PIX payments through the Mercado Pago v1 payments API.
// Its notifications only carry the payment id, so ParseWebhook fetches the payment.
type MercadoPagoGateway struct {
	baseURL          string
	accessToken      string
	webhookSecret    string
	payerEmailDomain string
	client           *http.Client
}

func NewMercadoPagoGateway(baseURL, accessToken, webhookSecret, payerEmailDomain string, client *http.Client) (*MercadoPagoGateway, error) {
	if accessToken == "" {
		return nil, errors.New("mercadopago access token empty")
	}
	if baseURL == "" {
		baseURL = mercadoPagoDefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid mercadopago base url: %w", err)
	}
	if payerEmailDomain == "" {
		payerEmailDomain = "buyers.invalid"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &MercadoPagoGateway{
		baseURL:          strings.TrimRight(baseURL, "/"),
		accessToken:      accessToken,
		webhookSecret:    webhookSecret,
		payerEmailDomain: payerEmailDomain,
		client:           client,
	}, nil
}

func (g *MercadoPagoGateway) Name() model.Gateway { return model.GatewayMercadoPago }

func (g *MercadoPagoGateway) auth() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+g.accessToken)
	return h
}

type mercadoPagoPayment struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	ExternalReference  string `json:"external_reference"`
	DateOfExpiration   string `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (g *MercadoPagoGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
	email := req.BuyerContact
	if email == "" {
		// the API requires a payer e-mail; Telegram buyers rarely have one
		email = "buyer-" + req.IdempotencyToken + "@" + g.payerEmailDomain
	}
	payload := map[string]any{
		"transaction_amount": json.Number(req.Amount.StringFixed(2)),
		"description":        req.Description,
		"payment_method_id":  "pix",
		"external_reference": req.IdempotencyToken,
		"payer":              map[string]string{"email": email},
	}
	if req.NotificationURL != "" {
		payload["notification_url"] = req.NotificationURL
	}
	if req.TTL > 0 {
		payload["date_of_expiration"] = time.Now().Add(req.TTL).Format(mercadoPagoTimeLayout)
	}

	h := g.auth()
	h.Set("X-Idempotency-Key", req.IdempotencyToken)
	var out mercadoPagoPayment
	if err := doJSON(ctx, g.client, string(g.Name()), "create_payment", http.MethodPost, g.baseURL+"/v1/payments", h, payload, &out); err != nil {
		return adapter.CreatePaymentResult{}, err
	}
	if out.ID == 0 {
		return adapter.CreatePaymentResult{}, &domain.GatewayError{Gateway: string(g.Name()), Op: "create_payment", Err: errors.New("response without id")}
	}

	td := out.PointOfInteraction.TransactionData
	pres, _ := json.Marshal(map[string]string{
		"qr_code":        td.QRCode,
		"qr_code_base64": td.QRCodeBase64,
		"ticket_url":     td.TicketURL,
	})
	res := adapter.CreatePaymentResult{ProviderPaymentID: strconv.FormatInt(out.ID, 10), Presentation: pres}
	if t, err := time.Parse(mercadoPagoTimeLayout, out.DateOfExpiration); err == nil {
		t = t.UTC()
		res.ExpiresAt = &t
	}
	return res, nil
}

func (g *MercadoPagoGateway) fetch(ctx context.Context, op, id string) (mercadoPagoPayment, error) {
	var out mercadoPagoPayment
	err := doJSON(ctx, g.client, string(g.Name()), op, http.MethodGet, g.baseURL+"/v1/payments/"+url.PathEscape(id), g.auth(), nil, &out)
	return out, err
}

func (g *MercadoPagoGateway) FetchStatus(ctx context.Context, providerPaymentID string) (model.PaymentStatus, error) {
	out, err := g.fetch(ctx, "fetch_status", providerPaymentID)
	if err != nil {
		return "", err
	}
	st, ok := mapMercadoPagoStatus(out.Status)
	if !ok {
		return "", &domain.GatewayError{Gateway: string(g.Name()), Op: "fetch_status", Err: fmt.Errorf("unknown status %q", out.Status)}
	}
	return st, nil
}

// ParseWebhook handles both webhook bodies ({"type":"payment","data":{"id":..}})
// and legacy IPN query strings (?topic=payment&id=..).
func (g *MercadoPagoGateway) ParseWebhook(ctx context.Context, req adapter.WebhookRequest) (adapter.WebhookEvent, error) {
	q := url.Values(req.Query)
	var body struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		Data   struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return adapter.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
	}

	kind := firstNonEmpty(body.Type, q.Get("type"), q.Get("topic"))
	if kind != "payment" {
		return adapter.WebhookEvent{}, domain.ErrIgnoredEvent
	}
	id := firstNonEmpty(strings.Trim(string(body.Data.ID), `"`), q.Get("data.id"), q.Get("id"))
	if id == "" {
		return adapter.WebhookEvent{}, fmt.Errorf("%w: notification without payment id", domain.ErrInvalidArgument)
	}
	if !g.verifySignature(req.Header, id) {
		return adapter.WebhookEvent{}, domain.ErrInvalidSignature
	}

	p, err := g.fetch(ctx, "parse_webhook", id)
	if err != nil {
		return adapter.WebhookEvent{}, err
	}
	st, ok := mapMercadoPagoStatus(p.Status)
	if !ok {
		return adapter.WebhookEvent{}, domain.ErrIgnoredEvent
	}
	return adapter.WebhookEvent{ProviderPaymentID: id, Status: st, Reference: p.ExternalReference}, nil
}

// verifySignature checks the x-signature header ("ts=..,v1=..") against the
// manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (g *MercadoPagoGateway) verifySignature(h http.Header, dataID string) bool {
	if g.webhookSecret == "" {
		return true
	}
	var ts, v1 string
	for _, part := range strings.Split(h.Get("X-Signature"), ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	manifest := "id:" + strings.ToLower(dataID) + ";"
	if rid := h.Get("X-Request-Id"); rid != "" {
		manifest += "request-id:" + rid + ";"
	}
	manifest += "ts:" + ts + ";"

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(manifest))
	return hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(v1))
}

func mapMercadoPagoStatus(s string) (model.PaymentStatus, bool) {
	switch s {
	case "pending", "in_process", "authorized", "in_mediation":
		return model.PaymentStatusPending, true
	case "approved":
		return model.PaymentStatusCompleted, true
	case "rejected", "cancelled":
		return model.PaymentStatusFailed, true
	case "refunded", "charged_back":
		return model.PaymentStatusRefunded, true
	}
	return "", false
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
