package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txMaxAttempts = 5
	txBudget      = 15 * time.Second
)

// TxFunc is one unit of work. Repositories called with the ctx it receives read and write
// through tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type activeTxKey struct{}

// TransactionFromContext reports the transaction a unit of work is running in.
func TransactionFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, _ := ctx.Value(activeTxKey{}).(*firestore.Transaction)
	return tx, tx != nil
}

// runInTransaction opens a transaction on client unless ctx already carries one. Firestore has
// no nested transactions, so inner units share the outer one.
func runInTransaction(ctx context.Context, client *firestore.Client, fn TxFunc) error {
	if tx, ok := TransactionFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txBudget {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txBudget)
		defer cancel()
	}

	err := client.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(context.WithValue(txCtx, activeTxKey{}, tx), tx)
	}, firestore.MaxAttempts(txMaxAttempts))
	return WrapError("transaction", err)
}
