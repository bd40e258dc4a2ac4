package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

type ProductRepository struct {
	db *sql.DB
}

// FindByIDs locks the selected rows when called inside a transaction so stock checks hold until commit.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := `SELECT id, name, price_cents, stock, active FROM products WHERE id = ANY($1)`
	if inTx(ctx) {
		q += ` FOR UPDATE`
	}
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, ids)
	if err != nil {
		return nil, mapError("products.find", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.Active); err != nil {
			return nil, mapError("products.scan", err)
		}
		out[p.ID] = p
	}
	return out, mapError("products.rows", rows.Err())
}

func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int64) error {
	if quantity <= 0 {
		return errors.New("product repository: quantity must be positive")
	}
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`, productID, quantity)
	if err != nil {
		return mapError("products.decrement", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repositories.NewStoreError("products.decrement", repositories.StoreErrorConflict, "insufficient stock or unknown product", nil)
	}
	return nil
}
