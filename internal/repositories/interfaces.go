package repositories

import (
	"context"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Products() ProductRepository
	Customers() CustomerRepository
	Deliveries() DeliveryRepository
	Orders() OrderRepository
	Transactions() TransactionRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Repositories called with
// the context handed to fn participate in the same transaction. Nested calls reuse the outer one.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository is the read-mostly catalog view used during checkout.
type ProductRepository interface {
	// FindByIDs returns the products found keyed by id. Missing ids are simply absent.
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	DecrementStock(ctx context.Context, productID string, quantity int64) error
}

// CustomerRepository persists customers keyed by their unique email.
type CustomerRepository interface {
	// UpsertByEmail creates the customer or refreshes name and phone of the existing record,
	// returning the stored customer with its id.
	UpsertByEmail(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

// DeliveryRepository persists delivery records.
type DeliveryRepository interface {
	Insert(ctx context.Context, delivery domain.Delivery) error
	Update(ctx context.Context, delivery domain.Delivery) error
	FindByID(ctx context.Context, deliveryID string) (domain.Delivery, error)
}

// OrderRepository persists orders. Reference is unique; Insert reports a conflict on duplicates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByReference(ctx context.Context, reference string) (domain.Order, error)
}

// TransactionRepository persists gateway transactions.
type TransactionRepository interface {
	Insert(ctx context.Context, txn domain.Transaction) error
	FindByID(ctx context.Context, transactionID string) (domain.Transaction, error)
	FindByExternalID(ctx context.Context, provider, externalID string) (domain.Transaction, error)
	// UpdateStatus writes txn only when the stored status still equals expected and reports a
	// conflict otherwise.
	UpdateStatus(ctx context.Context, txn domain.Transaction, expected domain.TransactionStatus) error
	ListNonTerminal(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error)
}
