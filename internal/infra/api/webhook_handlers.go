package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/infra/logging"
)

// handleWebhook acknowledges anything the provider should not resend
// (applied, duplicate, orphan, ignored) with 200. Only failures that a retry
// could fix get a 5xx.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	gateway := model.Gateway(chi.URLParam(r, "gateway"))
	tenantID := chi.URLParam(r, "tenantID")
	ctx := logging.WithTenantID(r.Context(), tenantID)
	log := logging.With(ctx, s.log)
	defer logging.TraceDuration(log, "Webhook."+string(gateway))()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	outcome, err := s.deps.Reconcile.HandleWebhook(ctx, gateway, tenantID, adapter.WebhookRequest{
		Body:       body,
		Header:     r.Header,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		status := webhookStatus(err)
		ev := log.Warn()
		if status >= 500 {
			ev = log.Error()
		}
		ev.Err(err).Str("gateway", string(gateway)).Str("remote_addr", r.RemoteAddr).Int("status", status).Msg("webhook rejected")
		writeTracedError(w, r, status, http.StatusText(status))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func webhookStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnsupportedGateway):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	var ge *domain.GatewayError
	if errors.As(err, &ge) && !ge.Transient {
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}

// handleTelegram answers 200 once the tenant resolves, whatever the update
// handling does: Telegram would otherwise redeliver the same update forever.
func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	tenant, err := s.deps.Tenants.Resolve(r.Context(), chi.URLParam(r, "credential"))
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "unknown bot")
			return
		}
		s.log.Error().Err(err).Msg("resolve tenant")
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	ctx := logging.WithTenantID(r.Context(), tenant.ID)
	log := logging.With(ctx, s.log)

	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		log.Warn().Err(err).Msg("undecodable telegram update")
		w.WriteHeader(http.StatusOK)
		return
	}
	if upd.SentFrom() != nil {
		ctx = logging.WithTgID(ctx, upd.SentFrom().ID)
	}
	if err := s.deps.Updates.Handle(ctx, tenant, upd); err != nil {
		logging.With(ctx, s.log).Error().Err(err).Int("update_id", upd.UpdateID).Msg("telegram update failed")
	}
	w.WriteHeader(http.StatusOK)
}
