package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	pfirestore "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/firestore"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// CustomerRepository stores customers with a companion email index that enforces uniqueness.
type CustomerRepository struct {
	provider  *pfirestore.Provider
	customers *pfirestore.Collection[customerDocument]
	emails    *pfirestore.Collection[customerEmailDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) *CustomerRepository {
	return &CustomerRepository{
		provider:  provider,
		customers: pfirestore.NewCollection[customerDocument](provider, customersCollection),
		emails:    pfirestore.NewCollection[customerEmailDocument](provider, customerEmailsCollection),
	}
}

// UpsertByEmail reads the email index and customer before writing either of them. customer.ID is
// used only when the email is new.
func (r *CustomerRepository) UpsertByEmail(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(customer.Email))
	if email == "" {
		return domain.Customer{}, errors.New("customer repository: email is required")
	}
	now := customer.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	key := emailKey(email)

	var saved domain.Customer
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		index, err := r.emails.Get(ctx, key)
		switch {
		case err == nil:
			existing, err := r.customers.Get(ctx, index.Data.CustomerID)
			if err != nil {
				return err
			}
			doc := existing.Data
			doc.FullName = customer.FullName
			doc.Phone = customer.Phone
			doc.UpdatedAt = now
			if err := r.customers.Set(ctx, existing.ID, doc); err != nil {
				return err
			}
			saved = doc.toDomain(existing.ID)
			return nil
		case isNotFound(err):
		default:
			return err
		}

		id := strings.TrimSpace(customer.ID)
		if id == "" {
			return errors.New("customer repository: id is required for new customers")
		}
		createdAt := customer.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		doc := customerDocument{
			Email:     email,
			FullName:  customer.FullName,
			Phone:     customer.Phone,
			CreatedAt: createdAt,
			UpdatedAt: now,
		}
		if err := r.emails.Create(ctx, key, customerEmailDocument{CustomerID: id}); err != nil {
			return err
		}
		if err := r.customers.Create(ctx, id, doc); err != nil {
			return err
		}
		saved = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.upsert", err)
	}
	return saved, nil
}

// FindByID loads a customer by id.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.customers.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func emailKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type customerDocument struct {
	Email     string    `firestore:"email"`
	FullName  string    `firestore:"fullName"`
	Phone     string    `firestore:"phone,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type customerEmailDocument struct {
	CustomerID string `firestore:"customerId"`
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:        id,
		Email:     d.Email,
		FullName:  d.FullName,
		Phone:     d.Phone,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)
