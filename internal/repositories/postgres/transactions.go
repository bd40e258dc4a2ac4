package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

type TransactionRepository struct {
	db *sql.DB
}

const transactionColumns = `id, external_id, provider, reference, order_id, amount_in_cents, currency, status, status_message,
        payment_method_type, payment_data, signature, created_at, updated_at, finalized_at`

func (r *TransactionRepository) Insert(ctx context.Context, t domain.Transaction) error {
	data, err := encodePaymentData(t.PaymentData)
	if err != nil {
		return err
	}
	q := `INSERT INTO transactions (` + transactionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = conn(ctx, r.db).ExecContext(ctx, q,
		t.ID, t.ExternalID, t.Provider, t.Reference, t.OrderID, t.AmountInCents, t.Currency, string(t.Status), t.StatusMessage,
		t.PaymentMethodType, data, t.Signature, t.CreatedAt, t.UpdatedAt, t.FinalizedAt)
	return mapError("transactions.insert", err)
}

func (r *TransactionRepository) FindByID(ctx context.Context, transactionID string) (domain.Transaction, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID)
	return scanTransaction("transactions.get", row)
}

func (r *TransactionRepository) FindByExternalID(ctx context.Context, provider, externalID string) (domain.Transaction, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE provider = $1 AND external_id = $2 LIMIT 1`, provider, externalID)
	return scanTransaction("transactions.get_external", row)
}

// UpdateStatus guards the write with the expected status in the WHERE clause.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, t domain.Transaction, expected domain.TransactionStatus) error {
	data, err := encodePaymentData(t.PaymentData)
	if err != nil {
		return err
	}
	const q = `
        UPDATE transactions
        SET external_id=$3, status=$4, status_message=$5, payment_data=$6, signature=$7, updated_at=$8, finalized_at=$9
        WHERE id=$1 AND status=$2`
	db := conn(ctx, r.db)
	res, err := db.ExecContext(ctx, q,
		t.ID, string(expected), t.ExternalID, string(t.Status), t.StatusMessage, data, t.Signature, t.UpdatedAt, t.FinalizedAt)
	if err != nil {
		return mapError("transactions.update_status", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var current string
	if err := db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = $1`, t.ID).Scan(&current); err != nil {
		return mapError("transactions.update_status", err)
	}
	return repositories.NewStoreError("transactions.update_status", repositories.StoreErrorConflict,
		fmt.Sprintf("status is %s, expected %s", current, expected), nil)
}

func (r *TransactionRepository) ListNonTerminal(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		string(domain.TransactionStatusPending), createdBefore, limit)
	if err != nil {
		return nil, mapError("transactions.list_pending", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction("transactions.list_pending", rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, mapError("transactions.list_pending", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(op string, row rowScanner) (domain.Transaction, error) {
	var (
		t         domain.Transaction
		status    string
		data      []byte
		finalized sql.NullTime
	)
	err := row.Scan(&t.ID, &t.ExternalID, &t.Provider, &t.Reference, &t.OrderID, &t.AmountInCents, &t.Currency, &status,
		&t.StatusMessage, &t.PaymentMethodType, &data, &t.Signature, &t.CreatedAt, &t.UpdatedAt, &finalized)
	if err != nil {
		return domain.Transaction{}, mapError(op, err)
	}
	t.Status = domain.TransactionStatus(status)
	if finalized.Valid {
		ts := finalized.Time
		t.FinalizedAt = &ts
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t.PaymentData); err != nil {
			return domain.Transaction{}, fmt.Errorf("%s: decode payment data: %w", op, err)
		}
	}
	return t, nil
}

func encodePaymentData(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("transactions: encode payment data: %w", err)
	}
	return raw, nil
}
