package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/i18n"
	"telegram-group-access/internal/infra/metrics"
	red "telegram-group-access/internal/infra/redis"
	"telegram-group-access/internal/usecase"
)

// Buyer flow steps, stored in ConversationState.Step.
const (
	StepChoosePlan      = "choose_plan"
	StepChooseGateway   = "choose_gateway"
	StepAwaitingPayment = "awaiting_payment"
)

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type callbackAnswerer interface {
	AnswerCallback(ctx context.Context, credential, callbackID, text string) error
}

type HandlerConfig struct {
	Gateways              []model.Gateway // offered to buyers, in order
	MaxActivationAttempts int
	ActivationWindow      time.Duration
	CommandsPerMinute     int
	Translator            *i18n.Translator // defaults to the embedded "en" texts
}

// UpdateHandler routes one decoded Telegram update for an already resolved tenant.
type UpdateHandler struct {
	tenants    usecase.TenantUseCase
	activation usecase.ActivationUseCase
	checkout   usecase.CheckoutUseCase
	reconcile  usecase.ReconcileUseCase
	states     repository.StateRepository
	limiter    Limiter
	messenger  adapter.Messenger
	cfg        HandlerConfig
	tr         *i18n.Translator
	log        zerolog.Logger
}

func NewUpdateHandler(
	tenants usecase.TenantUseCase,
	activation usecase.ActivationUseCase,
	checkout usecase.CheckoutUseCase,
	reconcile usecase.ReconcileUseCase,
	states repository.StateRepository,
	limiter Limiter,
	messenger adapter.Messenger,
	cfg HandlerConfig,
	logger *zerolog.Logger,
) *UpdateHandler {
	if cfg.MaxActivationAttempts <= 0 {
		cfg.MaxActivationAttempts = 5
	}
	if cfg.ActivationWindow <= 0 {
		cfg.ActivationWindow = 10 * time.Minute
	}
	if cfg.CommandsPerMinute <= 0 {
		cfg.CommandsPerMinute = 20
	}
	if cfg.Translator == nil {
		cfg.Translator = i18n.MustDefault()
	}
	return &UpdateHandler{
		tenants:    tenants,
		activation: activation,
		checkout:   checkout,
		reconcile:  reconcile,
		states:     states,
		limiter:    limiter,
		messenger:  messenger,
		cfg:        cfg,
		tr:         cfg.Translator,
		log:        logger.With().Str("component", "TelegramUpdates").Logger(),
	}
}

// chat is the per-update context passed to routes.
type chat struct {
	tenant *model.Tenant
	chatID int64
	userID int64
}

func (h *UpdateHandler) Handle(ctx context.Context, t *model.Tenant, u tgbotapi.Update) error {
	switch {
	case u.CallbackQuery != nil:
		metrics.IncTelegramUpdate("callback")
		return h.handleCallback(ctx, t, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil && u.Message.Chat != nil:
		if u.Message.Chat.IsGroup() || u.Message.Chat.IsSuperGroup() {
			metrics.IncTelegramUpdate("group_message")
			return h.handleGroupMessage(ctx, t, u.Message)
		}
		if u.Message.Chat.IsPrivate() {
			metrics.IncTelegramUpdate("private_message")
			return h.handlePrivateMessage(ctx, t, u.Message)
		}
	}
	metrics.IncTelegramUpdate("other")
	return nil
}

// ----- group: activation codes -----

func (h *UpdateHandler) handleGroupMessage(ctx context.Context, t *model.Tenant, msg *tgbotapi.Message) error {
	code, ok := usecase.NormalizeActivationCode(msg.Text)
	if !ok {
		return nil
	}
	allowed, err := h.limiter.Allow(ctx, red.ActivationAttemptKey(t.ID, msg.From.ID), h.cfg.MaxActivationAttempts, h.cfg.ActivationWindow)
	if err != nil {
		h.log.Warn().Err(err).Msg("rate limiter unavailable")
	} else if !allowed {
		metrics.IncRateLimitTriggered("activation")
		return h.messenger.SendMessage(ctx, t.Credential, msg.Chat.ID, h.tr.T("activation_too_many"))
	}

	_, err = h.activation.Redeem(ctx, code, usecase.RedeemContext{TenantID: t.ID, GroupID: msg.Chat.ID, UserID: msg.From.ID})
	return h.messenger.SendMessage(ctx, t.Credential, msg.Chat.ID, h.activationReply(err))
}

func (h *UpdateHandler) activationReply(err error) string {
	switch {
	case err == nil:
		return h.tr.T("activation_ok")
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		return h.tr.T("activation_used")
	case errors.Is(err, domain.ErrCodeExpired):
		return h.tr.T("activation_expired")
	case errors.Is(err, domain.ErrCodeNotFound):
		return h.tr.T("activation_invalid")
	case errors.Is(err, domain.ErrTenantSuspended):
		return h.tr.T("activation_suspended")
	default:
		return h.tr.T("activation_failed")
	}
}

// ----- private chat: buyer flow -----

type commandHandler func(ctx context.Context, c chat, args string) error

func (h *UpdateHandler) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":  h.handleStart,
		"plans":  h.handleStart,
		"cancel": h.handleCancel,
		"help":   h.handleHelp,
	}
}

func (h *UpdateHandler) handlePrivateMessage(ctx context.Context, t *model.Tenant, msg *tgbotapi.Message) error {
	c := chat{tenant: t, chatID: msg.Chat.ID, userID: msg.From.ID}
	if !t.AcceptsCommerce() {
		return h.messenger.SendMessage(ctx, t.Credential, c.chatID, h.tr.T(keySetupRequired))
	}
	if !msg.IsCommand() {
		return nil
	}
	if !h.allowCommand(ctx, c, msg.Command()) {
		return h.messenger.SendMessage(ctx, t.Credential, c.chatID, h.tr.T("rate_limited"))
	}
	fn, ok := h.commandRoutes()[msg.Command()]
	if !ok {
		return h.handleHelp(ctx, c, "")
	}
	return fn(ctx, c, msg.CommandArguments())
}

// Text keys asserted by tests.
const (
	keySetupRequired = "setup_required"
	keyMenuExpired   = "menu_expired"
	keyGenericError  = "generic_error"
)

func (h *UpdateHandler) allowCommand(ctx context.Context, c chat, command string) bool {
	ok, err := h.limiter.Allow(ctx, red.UserCommandKey(c.tenant.ID, c.userID, command), h.cfg.CommandsPerMinute, time.Minute)
	if err != nil {
		h.log.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered("command")
	}
	return ok
}

func (h *UpdateHandler) handleStart(ctx context.Context, c chat, _ string) error {
	plans, err := h.tenants.ListPlans(ctx, c.tenant.ID)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", c.tenant.ID).Msg("list plans")
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T(keyGenericError))
	}
	welcome := strings.TrimSpace(c.tenant.WelcomeMessage)
	if welcome == "" {
		welcome = h.tr.T("welcome_default")
	}
	if len(plans) == 0 {
		_ = h.states.ClearState(ctx, c.tenant.ID, c.userID)
		return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, welcome+"\n\n"+h.tr.T("no_plans"))
	}

	rows := make([][]adapter.InlineButton, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, []adapter.InlineButton{{Text: h.planLabel(p), Data: "plan:" + p.ID}})
	}
	if err := h.states.SetState(ctx, c.tenant.ID, c.userID, &repository.ConversationState{Step: StepChoosePlan, Data: map[string]string{}}); err != nil {
		return err
	}
	return h.messenger.SendButtons(ctx, c.tenant.Credential, c.chatID, welcome+"\n\n"+h.tr.T("choose_plan"), rows)
}

func (h *UpdateHandler) handleCancel(ctx context.Context, c chat, _ string) error {
	if err := h.states.ClearState(ctx, c.tenant.ID, c.userID); err != nil {
		return err
	}
	return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("cancelled"))
}

func (h *UpdateHandler) handleHelp(ctx context.Context, c chat, _ string) error {
	return h.messenger.SendMessage(ctx, c.tenant.Credential, c.chatID, h.tr.T("help"))
}

func (h *UpdateHandler) planLabel(p *model.Plan) string {
	if p.Lifetime() {
		return h.tr.T("plan_label_lifetime", p.Name, p.Price.StringFixed(2))
	}
	return h.tr.T("plan_label_days", p.Name, p.Price.StringFixed(2), int(p.AccessDuration.Hours()/24))
}
