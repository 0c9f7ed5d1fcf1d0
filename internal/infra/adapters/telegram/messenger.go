package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.Messenger = (*Messenger)(nil)

const inviteTTL = 24 * time.Hour

// Messenger talks to the Bot API as whichever tenant bot the caller names.
// A BotAPI value is built per call without the getMe round trip, so no
// per-tenant session lives in process.
type Messenger struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

func NewMessenger(endpoint string, client *http.Client, logger *zerolog.Logger) *Messenger {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Messenger{
		endpoint: endpoint,
		client:   client,
		log:      logger.With().Str("component", "TelegramMessenger").Logger(),
	}
}

func (m *Messenger) bot(credential string) *tgbotapi.BotAPI {
	b := &tgbotapi.BotAPI{Token: credential, Client: m.client, Buffer: 100}
	b.SetAPIEndpoint(m.endpoint)
	return b
}

// CreateSingleUseInvite creates a link for exactly one member, valid for 24h.
func (m *Messenger) CreateSingleUseInvite(ctx context.Context, credential string, groupID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: groupID},
		ExpireDate:  int(time.Now().Add(inviteTTL).Unix()),
		MemberLimit: 1,
	}
	resp, err := m.bot(credential).Request(cfg)
	if err != nil {
		return "", fmt.Errorf("createChatInviteLink: %w", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("createChatInviteLink: empty link")
	}
	return link.InviteLink, nil
}

func (m *Messenger) SendMessage(ctx context.Context, credential string, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := m.bot(credential).Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

// SendButtons sends a message with an inline keyboard.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else the label itself is used as callback data
func (m *Messenger) SendButtons(ctx context.Context, credential string, userID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	if kb := keyboard(rows); len(kb) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kb...)
	}
	if _, err := m.bot(credential).Send(msg); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

func keyboard(rows [][]adapter.InlineButton) [][]tgbotapi.InlineKeyboardButton {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}
	return kbRows
}

// RevokeMembership removes the user and lifts the ban right away, so the user
// can buy again later.
func (m *Messenger) RevokeMembership(ctx context.Context, credential string, groupID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := m.bot(credential)
	member := tgbotapi.ChatMemberConfig{ChatID: groupID, UserID: userID}
	if _, err := b.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return fmt.Errorf("banChatMember: %w", err)
	}
	if _, err := b.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true}); err != nil {
		// the user is out of the group already; a lingering ban only blocks re-purchase
		m.log.Warn().Err(err).Int64("group_id", groupID).Int64("tg_id", userID).Msg("unban after revoke failed")
	}
	return nil
}

// AnswerCallback stops the client-side spinner of an inline button press.
func (m *Messenger) AnswerCallback(ctx context.Context, credential, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.bot(credential).Request(tgbotapi.NewCallback(callbackID, text))
	return err
}
