package repository

import (
	"context"
	"time"

	"telegram-group-access/internal/domain/model"
)

// ActivationCodeRepository is the port for managing activation codes.
type ActivationCodeRepository interface {
	// Insert creates a code. Earlier unused codes of the tenant are voided first.
	Insert(ctx context.Context, tx Tx, code *model.ActivationCode) error
	// FindByCode returns the code regardless of its state; locks it inside a tx.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.ActivationCode, error)
	// MarkUsed consumes the code only if it is unused and unexpired at now.
	MarkUsed(ctx context.Context, tx Tx, code string, usedBy int64, now time.Time) (bool, error)
}
