package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	pfirestore "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/firestore"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// TransactionRepository persists gateway transactions.
type TransactionRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[transactionDocument]
}

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) *TransactionRepository {
	return &TransactionRepository{
		provider: provider,
		base:     pfirestore.NewCollection[transactionDocument](provider, transactionsCollection),
	}
}

func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	return r.base.Create(ctx, txn.ID, newTransactionDocument(txn))
}

func (r *TransactionRepository) FindByID(ctx context.Context, transactionID string) (domain.Transaction, error) {
	doc, err := r.base.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByExternalID resolves a transaction by the identifier the gateway assigned to it.
func (r *TransactionRepository) FindByExternalID(ctx context.Context, provider, externalID string) (domain.Transaction, error) {
	provider = strings.TrimSpace(provider)
	externalID = strings.TrimSpace(externalID)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("provider", "==", provider).Where("externalId", "==", externalID).Limit(1)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(docs) == 0 {
		return domain.Transaction{}, pfirestore.NewNotFoundError("transactions.find_external", fmt.Errorf("transaction %s/%s not found", provider, externalID))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// UpdateStatus compares the stored status with expected and writes txn only when they match.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, txn domain.Transaction, expected domain.TransactionStatus) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		current, err := r.base.Get(ctx, txn.ID)
		if err != nil {
			return err
		}
		if domain.TransactionStatus(current.Data.Status) != expected {
			return pfirestore.NewConflictError("", fmt.Errorf("transaction %s status is %s, expected %s", txn.ID, current.Data.Status, expected))
		}
		return r.base.Set(ctx, txn.ID, newTransactionDocument(txn))
	})
	return pfirestore.WrapError("transactions.update_status", err)
}

// ListNonTerminal returns pending transactions created before the cutoff, oldest first.
func (r *TransactionRepository) ListNonTerminal(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.TransactionStatusPending)).
			Where("createdAt", "<", createdBefore.UTC()).
			OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	txns := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		txns = append(txns, doc.Data.toDomain(doc.ID))
	}
	return txns, nil
}

type transactionDocument struct {
	ExternalID        string         `firestore:"externalId,omitempty"`
	Provider          string         `firestore:"provider"`
	Reference         string         `firestore:"reference"`
	OrderID           string         `firestore:"orderId"`
	AmountInCents     int64          `firestore:"amountInCents"`
	Currency          string         `firestore:"currency"`
	Status            string         `firestore:"status"`
	StatusMessage     string         `firestore:"statusMessage,omitempty"`
	PaymentMethodType string         `firestore:"paymentMethodType"`
	PaymentData       map[string]any `firestore:"paymentData,omitempty"`
	Signature         string         `firestore:"signature,omitempty"`
	CreatedAt         time.Time      `firestore:"createdAt"`
	UpdatedAt         time.Time      `firestore:"updatedAt"`
	FinalizedAt       *time.Time     `firestore:"finalizedAt,omitempty"`
}

func newTransactionDocument(t domain.Transaction) transactionDocument {
	return transactionDocument{
		ExternalID:        t.ExternalID,
		Provider:          t.Provider,
		Reference:         t.Reference,
		OrderID:           t.OrderID,
		AmountInCents:     t.AmountInCents,
		Currency:          t.Currency,
		Status:            string(t.Status),
		StatusMessage:     t.StatusMessage,
		PaymentMethodType: t.PaymentMethodType,
		PaymentData:       t.PaymentData,
		Signature:         t.Signature,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		FinalizedAt:       t.FinalizedAt,
	}
}

func (d transactionDocument) toDomain(id string) domain.Transaction {
	return domain.Transaction{
		ID:                id,
		ExternalID:        d.ExternalID,
		Provider:          d.Provider,
		Reference:         d.Reference,
		OrderID:           d.OrderID,
		AmountInCents:     d.AmountInCents,
		Currency:          d.Currency,
		Status:            domain.TransactionStatus(d.Status),
		StatusMessage:     d.StatusMessage,
		PaymentMethodType: d.PaymentMethodType,
		PaymentData:       d.PaymentData,
		Signature:         d.Signature,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		FinalizedAt:       d.FinalizedAt,
	}
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)
