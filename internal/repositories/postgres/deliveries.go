package postgres

import (
	"context"
	"database/sql"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

type DeliveryRepository struct {
	db *sql.DB
}

func (r *DeliveryRepository) Insert(ctx context.Context, d domain.Delivery) error {
	const q = `
        INSERT INTO deliveries (id, address, city, region, postal_code, country, status, estimated_delivery_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := conn(ctx, r.db).ExecContext(ctx, q,
		d.ID, d.Address, d.City, d.Region, d.PostalCode, d.Country, string(d.Status), d.EstimatedDeliveryDate, d.CreatedAt, d.UpdatedAt)
	return mapError("deliveries.insert", err)
}

func (r *DeliveryRepository) Update(ctx context.Context, d domain.Delivery) error {
	const q = `
        UPDATE deliveries
        SET address=$2, city=$3, region=$4, postal_code=$5, country=$6, status=$7, estimated_delivery_date=$8, updated_at=$9
        WHERE id=$1`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		d.ID, d.Address, d.City, d.Region, d.PostalCode, d.Country, string(d.Status), d.EstimatedDeliveryDate, d.UpdatedAt)
	if err != nil {
		return mapError("deliveries.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repositories.NewStoreError("deliveries.update", repositories.StoreErrorNotFound, "delivery not found", nil)
	}
	return nil
}

func (r *DeliveryRepository) FindByID(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	const q = `
        SELECT id, address, city, region, postal_code, country, status, estimated_delivery_date, created_at, updated_at
        FROM deliveries WHERE id = $1`
	var (
		d      domain.Delivery
		status string
		eta    sql.NullTime
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, q, deliveryID).
		Scan(&d.ID, &d.Address, &d.City, &d.Region, &d.PostalCode, &d.Country, &status, &eta, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return domain.Delivery{}, mapError("deliveries.get", err)
	}
	d.Status = domain.DeliveryStatus(status)
	if eta.Valid {
		t := eta.Time
		d.EstimatedDeliveryDate = &t
	}
	return d, nil
}
