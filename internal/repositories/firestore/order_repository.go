package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	pfirestore "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/firestore"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// OrderRepository persists orders. A document under orderReferences keyed by the reference
// guarantees its uniqueness.
type OrderRepository struct {
	provider   *pfirestore.Provider
	orders     *pfirestore.Collection[orderDocument]
	references *pfirestore.Collection[orderReferenceDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) *OrderRepository {
	return &OrderRepository{
		provider:   provider,
		orders:     pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		references: pfirestore.NewCollection[orderReferenceDocument](provider, orderReferencesCollection),
	}
}

// Insert creates the reference marker and the order. Inside a transaction a duplicate reference
// surfaces as a conflict when the transaction commits.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	reference := strings.TrimSpace(order.Reference)
	if reference == "" {
		return errors.New("order repository: reference is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := r.references.Create(ctx, reference, orderReferenceDocument{OrderID: order.ID}); err != nil {
			return err
		}
		return r.orders.Create(ctx, order.ID, newOrderDocument(order))
	})
}

// Update overwrites the order document. The reference is immutable.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.orders.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByReference(ctx context.Context, reference string) (domain.Order, error) {
	marker, err := r.references.Get(ctx, strings.TrimSpace(reference))
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, marker.Data.OrderID)
}

type orderReferenceDocument struct {
	OrderID string `firestore:"orderId"`
}

type orderItemDocument struct {
	ProductID      string `firestore:"productId"`
	Quantity       int64  `firestore:"quantity"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
}

type orderBreakdownDocument struct {
	SubtotalCents int64 `firestore:"subtotalCents"`
	ShippingCents int64 `firestore:"shippingCents"`
	TaxCents      int64 `firestore:"taxCents"`
	TotalCents    int64 `firestore:"totalCents"`
}

type orderDocument struct {
	Reference     string                 `firestore:"reference"`
	CustomerID    string                 `firestore:"customerId"`
	DeliveryID    string                 `firestore:"deliveryId,omitempty"`
	TransactionID string                 `firestore:"transactionId,omitempty"`
	AmountInCents int64                  `firestore:"amountInCents"`
	Currency      string                 `firestore:"currency"`
	Status        string                 `firestore:"status"`
	PaymentMethod string                 `firestore:"paymentMethod,omitempty"`
	Items         []orderItemDocument    `firestore:"items"`
	Breakdown     orderBreakdownDocument `firestore:"breakdown"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDocument{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return orderDocument{
		Reference:     o.Reference,
		CustomerID:    o.CustomerID,
		DeliveryID:    o.DeliveryID,
		TransactionID: o.TransactionID,
		AmountInCents: o.AmountInCents,
		Currency:      o.Currency,
		Status:        string(o.Status),
		PaymentMethod: o.PaymentMethod,
		Items:         items,
		Breakdown: orderBreakdownDocument{
			SubtotalCents: o.Breakdown.SubtotalCents,
			ShippingCents: o.Breakdown.ShippingCents,
			TaxCents:      o.Breakdown.TaxCents,
			TotalCents:    o.Breakdown.TotalCents,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return domain.Order{
		ID:            id,
		Reference:     d.Reference,
		CustomerID:    d.CustomerID,
		DeliveryID:    d.DeliveryID,
		TransactionID: d.TransactionID,
		AmountInCents: d.AmountInCents,
		Currency:      d.Currency,
		Status:        domain.OrderStatus(d.Status),
		PaymentMethod: d.PaymentMethod,
		Items:         items,
		Breakdown: domain.PriceBreakdown{
			SubtotalCents: d.Breakdown.SubtotalCents,
			ShippingCents: d.Breakdown.ShippingCents,
			TaxCents:      d.Breakdown.TaxCents,
			TotalCents:    d.Breakdown.TotalCents,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
