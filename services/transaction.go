package services

import (
	"context"
	"fmt"

	"github.com/upb/campaign-gateway/repositories"
	"go.uber.org/multierr"
)

// InTx runs fn in a transaction and returns its result. fn receives the
// transaction's context so repositories called with it join the transaction.
// The transaction commits only when fn returns without error; a failing or
// panicking fn rolls it back.
func InTx[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (result T, err error) {
	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if result, err = fn(tx.Context(), tx); err != nil {
		return result, err
	}

	finished = true
	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}
