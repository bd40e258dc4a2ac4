package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
)

type CustomerRepository struct {
	db *sql.DB
}

// UpsertByEmail relies on the unique email constraint; the existing id and created_at win.
func (r *CustomerRepository) UpsertByEmail(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(customer.Email))
	if email == "" {
		return domain.Customer{}, errors.New("customer repository: email is required")
	}
	const q = `
        INSERT INTO customers (id, email, full_name, phone, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (email) DO UPDATE
        SET full_name = EXCLUDED.full_name, phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at
        RETURNING id, email, full_name, phone, created_at, updated_at`
	var out domain.Customer
	err := conn(ctx, r.db).QueryRowContext(ctx, q,
		customer.ID, email, customer.FullName, customer.Phone, customer.CreatedAt, customer.UpdatedAt,
	).Scan(&out.ID, &out.Email, &out.FullName, &out.Phone, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return domain.Customer{}, mapError("customers.upsert", err)
	}
	return out, nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	const q = `SELECT id, email, full_name, phone, created_at, updated_at FROM customers WHERE id = $1`
	var out domain.Customer
	err := conn(ctx, r.db).QueryRowContext(ctx, q, customerID).
		Scan(&out.ID, &out.Email, &out.FullName, &out.Phone, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return domain.Customer{}, mapError("customers.get", err)
	}
	return out, nil
}
