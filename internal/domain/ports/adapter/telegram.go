// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// Messenger is the messaging-platform client. Every call names the tenant
// credential it acts as, so no per-bot session is kept in process.
type Messenger interface {
	// CreateSingleUseInvite returns an invite link usable by one member.
	CreateSingleUseInvite(ctx context.Context, credential string, groupID int64) (string, error)
	SendMessage(ctx context.Context, credential string, userID int64, text string) error
	SendButtons(ctx context.Context, credential string, userID int64, text string, rows [][]InlineButton) error
	RevokeMembership(ctx context.Context, credential string, groupID, userID int64) error
}
