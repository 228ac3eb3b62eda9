package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within a
// database transaction, passing the underlying transaction handle via `tx`.
//
// Repositories detect a live transaction from the handle and switch to
// tx-bound Exec/Query plus SELECT ... FOR UPDATE. The concrete type of `tx`
// is infra-defined (pgx.Tx for Postgres) and repositories MUST accept nil
// for the non-transactional path.
//
//	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		p, err := payments.FindByReference(ctx, tx, ref)
//		...
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
	// Savepoint runs fn in a nested transaction of tx. An error from fn rolls
	// back only the nested part and is returned; the outer tx stays usable.
	Savepoint(ctx context.Context, tx Tx, fn func(ctx context.Context, tx Tx) error) error
}
