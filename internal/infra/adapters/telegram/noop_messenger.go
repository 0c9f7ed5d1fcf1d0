package telegram

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/infra/logging"
)

var _ adapter.Messenger = (*NoopMessenger)(nil)

// NoopMessenger logs outbound calls instead of reaching Telegram. Used in dev.
type NoopMessenger struct {
	seq atomic.Int64
	log zerolog.Logger
}

func NewNoopMessenger(logger *zerolog.Logger) *NoopMessenger {
	return &NoopMessenger{log: logger.With().Str("component", "NoopMessenger").Logger()}
}

func (m *NoopMessenger) CreateSingleUseInvite(ctx context.Context, credential string, groupID int64) (string, error) {
	link := fmt.Sprintf("https://t.me/+noop%d_%d", -groupID, m.seq.Add(1))
	m.log.Info().Str("bot", logging.Redact(credential, false)).Int64("group_id", groupID).Str("link", link).Msg("invite created")
	return link, ctx.Err()
}

func (m *NoopMessenger) SendMessage(ctx context.Context, credential string, userID int64, text string) error {
	m.log.Info().Str("bot", logging.Redact(credential, false)).Int64("tg_id", userID).Str("text", text).Msg("message")
	return ctx.Err()
}

func (m *NoopMessenger) SendButtons(ctx context.Context, credential string, userID int64, text string, rows [][]adapter.InlineButton) error {
	m.log.Info().Str("bot", logging.Redact(credential, false)).Int64("tg_id", userID).Str("text", text).Interface("buttons", rows).Msg("message with buttons")
	return ctx.Err()
}

func (m *NoopMessenger) RevokeMembership(ctx context.Context, credential string, groupID, userID int64) error {
	m.log.Info().Str("bot", logging.Redact(credential, false)).Int64("group_id", groupID).Int64("tg_id", userID).Msg("membership revoked")
	return ctx.Err()
}
