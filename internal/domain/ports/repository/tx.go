package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept NoTX to run outside a transaction.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside one database transaction. The handle passed
// to fn must be forwarded to every repository call that should join it.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		s, err := sessions.FindByID(ctx, tx, id)
//		...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
