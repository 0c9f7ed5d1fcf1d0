package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/usecase"
)

type cbHandler func(ctx context.Context, c chat, st *repository.ConversationState, data string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (h *UpdateHandler) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"check":  h.checkCBRoute,
		"cancel": h.cancelCBRoute,
	}
}

func (h *UpdateHandler) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: "plan:", Fn: h.planCBRoute},
		{Prefix: "gw:", Fn: h.gatewayCBRoute},
	}
}

func (h *UpdateHandler) handleCallback(ctx context.Context, t *model.Tenant, q *tgbotapi.CallbackQuery) error {
	if q.From == nil {
		return nil
	}
	if a, ok := h.messenger.(callbackAnswerer); ok {
		// stop the client spinner whatever the outcome
		defer func() { _ = a.AnswerCallback(ctx, t.Credential, q.ID, "") }()
	}
	c := chat{tenant: t, chatID: q.From.ID, userID: q.From.ID}
	if q.Message != nil && q.Message.Chat != nil {
		c.chatID = q.Message.Chat.ID
	}
	if !t.AcceptsCommerce() {
		return h.messenger.SendMessage(ctx, t.Credential, c.chatID, h.tr.T(keySetupRequired))
	}
	if !h.allowCommand(ctx, c, "callback") {
		return h.messenger.SendMessage(ctx, t.Credential, c.chatID, h.tr.T("rate_limited"))
	}

	st, err := h.states.GetState(ctx, t.ID, c.userID)
	if err != nil {
		return err
	}
	data := strings.TrimSpace(q.Data)
	if fn, ok := h.cbRoutes()[data]; ok {
		return fn(ctx, c, st, data)
	}
	for _, pr := range h.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, c, st, strings.TrimPrefix(data, pr.Prefix))
		}
	}
	h.log.Debug().Str("data", data).Msg("unknown callback data")
	return nil
}

func atStep(st *repository.ConversationState, steps ...string) bool {
	if st == nil {
		return false
	}
	for _, s := range steps {
		if st.Step == s {
			return true
		}
	}
	return false
}

// planCBRoute: choose_plan -> choose_gateway. Picking another plan while
// choosing a gateway is allowed.
func (h *UpdateHandler) planCBRoute(ctx context.Context, c chat, st *repository.ConversationState, planID string) error {
	if !atStep(st, StepChoosePlan, StepChooseGateway) {
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T(keyMenuExpired))
	}
	plans, err := h.tenants.ListPlans(ctx, c.tenant.ID)
	if err != nil {
		return err
	}
	var plan *model.Plan
	for _, p := range plans {
		if p.ID == planID {
			plan = p
			break
		}
	}
	if plan == nil {
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("plan_unavailable"))
	}
	if len(h.cfg.Gateways) == 0 {
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T(keyGenericError))
	}

	next := &repository.ConversationState{
		Step: StepChooseGateway,
		// one reference per plan choice keeps double taps on a gateway idempotent
		Data: map[string]string{"plan_id": plan.ID, "reference": ulid.Make().String()},
	}
	if err := h.states.SetState(ctx, c.tenant.ID, c.userID, next); err != nil {
		return err
	}
	rows := make([][]adapter.InlineButton, 0, len(h.cfg.Gateways)+1)
	for _, gw := range h.cfg.Gateways {
		rows = append(rows, []adapter.InlineButton{{Text: gatewayLabel(gw), Data: "gw:" + string(gw)}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: h.tr.T("btn_cancel"), Data: "cancel"}})
	return h.messenger.SendButtons(ctx, c.tenant.Credential, c.chatID, h.tr.T("how_to_pay", h.planLabel(plan)), rows)
}

// gatewayCBRoute: choose_gateway -> awaiting_payment.
func (h *UpdateHandler) gatewayCBRoute(ctx context.Context, c chat, st *repository.ConversationState, gw string) error {
	if !atStep(st, StepChooseGateway) || st.Data["plan_id"] == "" {
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T(keyMenuExpired))
	}
	res, err := h.checkout.Checkout(ctx, usecase.CheckoutRequest{
		TenantID:        c.tenant.ID,
		PlanID:          st.Data["plan_id"],
		BuyerExternalID: c.userID,
		Gateway:         model.Gateway(gw),
		Reference:       st.Data["reference"] + "-" + gw,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("tenant_id", c.tenant.ID).Int64("tg_id", c.userID).Str("gateway", gw).Msg("checkout failed")
		switch {
		case errors.Is(err, domain.ErrPlanInactive):
			return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("plan_unavailable"))
		case errors.Is(err, domain.ErrUnsupportedGateway):
			return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("gateway_unavailable"))
		}
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("payment_create_failed"))
	}
	if res.Status != model.PaymentStatusPending {
		// the reference was already spent by an earlier attempt
		_ = h.states.ClearState(ctx, c.tenant.ID, c.userID)
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("payment_spent"))
	}

	next := &repository.ConversationState{
		Step: StepAwaitingPayment,
		Data: map[string]string{"plan_id": st.Data["plan_id"], "payment_id": res.PaymentID},
	}
	if err := h.states.SetState(ctx, c.tenant.ID, c.userID, next); err != nil {
		return err
	}
	text, payURL := h.paymentText(res)
	var rows [][]adapter.InlineButton
	if payURL != "" {
		rows = append(rows, []adapter.InlineButton{{Text: h.tr.T("btn_open_payment"), URL: payURL}})
	}
	rows = append(rows,
		[]adapter.InlineButton{{Text: h.tr.T("btn_paid"), Data: "check"}},
		[]adapter.InlineButton{{Text: h.tr.T("btn_cancel"), Data: "cancel"}},
	)
	return h.messenger.SendButtons(ctx, c.tenant.Credential, c.chatID, text, rows)
}

// checkCBRoute polls the gateway for the awaited payment.
func (h *UpdateHandler) checkCBRoute(ctx context.Context, c chat, st *repository.ConversationState, _ string) error {
	if !atStep(st, StepAwaitingPayment) || st.Data["payment_id"] == "" {
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T(keyMenuExpired))
	}
	p, err := h.reconcile.Refresh(ctx, st.Data["payment_id"])
	if err != nil {
		if domain.IsTransientGatewayError(err) {
			return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("payment_unreachable"))
		}
		h.log.Error().Err(err).Str("payment_id", st.Data["payment_id"]).Msg("refresh failed")
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T(keyGenericError))
	}

	var reply string
	switch p.Status {
	case model.PaymentStatusPending:
		return h.messenger.SendButtons(ctx, c.tenant.Credential, c.chatID, h.tr.T("payment_pending"),
			[][]adapter.InlineButton{{{Text: h.tr.T("btn_check_again"), Data: "check"}}})
	case model.PaymentStatusCompleted:
		reply = h.tr.T("payment_confirmed")
	case model.PaymentStatusRefunded:
		reply = h.tr.T("payment_refunded")
	default:
		reply = h.tr.T("payment_failed")
	}
	if err := h.states.ClearState(ctx, c.tenant.ID, c.userID); err != nil {
		h.log.Warn().Err(err).Msg("clear state")
	}
	return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, reply)
}

func (h *UpdateHandler) cancelCBRoute(ctx context.Context, c chat, _ *repository.ConversationState, _ string) error {
	return h.handleCancel(ctx, c, "")
}

func gatewayLabel(gw model.Gateway) string {
	switch gw {
	case model.GatewayPushinPay:
		return "PIX (PushinPay)"
	case model.GatewayMercadoPago:
		return "PIX (Mercado Pago)"
	case model.GatewaySandbox:
		return "Sandbox"
	}
	return string(gw)
}

// paymentText renders the opaque presentation data of a checkout. It returns
// the message and an optional payment page URL.
func (h *UpdateHandler) paymentText(res *usecase.CheckoutResult) (string, string) {
	var pres map[string]string
	_ = json.Unmarshal(res.Presentation, &pres)

	var b strings.Builder
	if code := pres["qr_code"]; code != "" {
		b.WriteString(h.tr.T("payment_pix") + "\n\n")
		b.WriteString(code)
		b.WriteString("\n\n")
	} else {
		b.WriteString(h.tr.T("payment_created") + "\n\n")
	}
	if res.ExpiresAt != nil {
		b.WriteString(h.tr.T("payment_offer_expires", res.ExpiresAt.UTC().Format("2006-01-02 15:04")) + "\n")
	}
	b.WriteString(h.tr.T("payment_after_paying"))
	return b.String(), pres["ticket_url"]
}
