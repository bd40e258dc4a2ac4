package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/firestore"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

const (
	productsCollection        = "products"
	customersCollection       = "customers"
	customerEmailsCollection  = "customerEmails"
	deliveriesCollection      = "deliveries"
	ordersCollection          = "orders"
	orderReferencesCollection = "orderReferences"
	transactionsCollection    = "transactions"
)

// Registry wires the Firestore-backed checkout repositories around one provider.
type Registry struct {
	provider     *pfirestore.Provider
	products     *ProductRepository
	customers    *CustomerRepository
	deliveries   *DeliveryRepository
	orders       *OrderRepository
	transactions *TransactionRepository
}

// NewRegistry constructs the registry. The provider is owned by the registry and closed with it.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	return &Registry{
		provider:     provider,
		products:     NewProductRepository(provider),
		customers:    NewCustomerRepository(provider),
		deliveries:   NewDeliveryRepository(provider),
		orders:       NewOrderRepository(provider),
		transactions: NewTransactionRepository(provider),
	}, nil
}

// RunInTx runs fn inside one Firestore transaction. Firestore requires every read to precede
// the first write, so callers load what they need before mutating.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx, ordersCollection)
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Provider exposes the shared client holder for stores that live beside the repositories.
func (r *Registry) Provider() *pfirestore.Provider { return r.provider }

func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Customers() repositories.CustomerRepository       { return r.customers }
func (r *Registry) Deliveries() repositories.DeliveryRepository      { return r.deliveries }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }

var _ repositories.Registry = (*Registry)(nil)
