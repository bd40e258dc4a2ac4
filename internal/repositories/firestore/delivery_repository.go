package firestore

import (
	"context"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	pfirestore "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/firestore"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// DeliveryRepository persists delivery records.
type DeliveryRepository struct {
	base *pfirestore.Collection[deliveryDocument]
}

// NewDeliveryRepository constructs a Firestore-backed delivery repository.
func NewDeliveryRepository(provider *pfirestore.Provider) *DeliveryRepository {
	return &DeliveryRepository{
		base: pfirestore.NewCollection[deliveryDocument](provider, deliveriesCollection),
	}
}

func (r *DeliveryRepository) Insert(ctx context.Context, delivery domain.Delivery) error {
	return r.base.Create(ctx, delivery.ID, newDeliveryDocument(delivery))
}

func (r *DeliveryRepository) Update(ctx context.Context, delivery domain.Delivery) error {
	return r.base.Set(ctx, delivery.ID, newDeliveryDocument(delivery))
}

func (r *DeliveryRepository) FindByID(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	doc, err := r.base.Get(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type deliveryDocument struct {
	Address               string     `firestore:"address"`
	City                  string     `firestore:"city"`
	Region                string     `firestore:"region,omitempty"`
	PostalCode            string     `firestore:"postalCode,omitempty"`
	Country               string     `firestore:"country"`
	Status                string     `firestore:"status"`
	EstimatedDeliveryDate *time.Time `firestore:"estimatedDeliveryDate,omitempty"`
	CreatedAt             time.Time  `firestore:"createdAt"`
	UpdatedAt             time.Time  `firestore:"updatedAt"`
}

func newDeliveryDocument(d domain.Delivery) deliveryDocument {
	return deliveryDocument{
		Address:               d.Address,
		City:                  d.City,
		Region:                d.Region,
		PostalCode:            d.PostalCode,
		Country:               d.Country,
		Status:                string(d.Status),
		EstimatedDeliveryDate: d.EstimatedDeliveryDate,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

func (d deliveryDocument) toDomain(id string) domain.Delivery {
	return domain.Delivery{
		ID:                    id,
		Address:               d.Address,
		City:                  d.City,
		Region:                d.Region,
		PostalCode:            d.PostalCode,
		Country:               d.Country,
		Status:                domain.DeliveryStatus(d.Status),
		EstimatedDeliveryDate: d.EstimatedDeliveryDate,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

var _ repositories.DeliveryRepository = (*DeliveryRepository)(nil)
