package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	pfirestore "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/firestore"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// ProductRepository reads the catalog and applies stock decrements.
type ProductRepository struct {
	base *pfirestore.Collection[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) *ProductRepository {
	return &ProductRepository{
		base: pfirestore.NewCollection[productDocument](provider, productsCollection),
	}
}

// FindByIDs loads the requested products in one round trip. Duplicate ids are collapsed.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	docs, err := r.base.GetAll(ctx, unique)
	if err != nil {
		return nil, err
	}
	products := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		products[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return products, nil
}

// DecrementStock issues a blind increment so it can follow the reads of an open transaction.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int64) error {
	if quantity <= 0 {
		return errors.New("product repository: quantity must be positive")
	}
	return r.base.Update(ctx, productID, []firestore.Update{
		{Path: "stock", Value: firestore.Increment(-quantity)},
	})
}

type productDocument struct {
	Name       string `firestore:"name"`
	PriceCents int64  `firestore:"priceCents"`
	Stock      int64  `firestore:"stock"`
	Active     bool   `firestore:"active"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:         id,
		Name:       strings.TrimSpace(d.Name),
		PriceCents: d.PriceCents,
		Stock:      d.Stock,
		Active:     d.Active,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
