package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle (pgx.Tx for Postgres). Repositories
// accept nil for the non-transactional path.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside one database transaction. Repositories
// called with the tx handle lock rows (SELECT ... FOR UPDATE) where they read
// before writing, which is how ledger transitions stay atomic.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
