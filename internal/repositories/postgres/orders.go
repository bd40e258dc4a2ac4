package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

type OrderRepository struct {
	db *sql.DB
}

const orderColumns = `id, reference, customer_id, delivery_id, transaction_id, amount_in_cents, currency, status,
        payment_method, items, breakdown, created_at, updated_at`

type itemRow struct {
	ProductID      string `json:"productId"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type breakdownRow struct {
	SubtotalCents int64 `json:"subtotalCents"`
	ShippingCents int64 `json:"shippingCents"`
	TaxCents      int64 `json:"taxCents"`
	TotalCents    int64 `json:"totalCents"`
}

func (r *OrderRepository) Insert(ctx context.Context, o domain.Order) error {
	items, breakdown, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	q := `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = conn(ctx, r.db).ExecContext(ctx, q,
		o.ID, o.Reference, o.CustomerID, o.DeliveryID, o.TransactionID, o.AmountInCents, o.Currency, string(o.Status),
		o.PaymentMethod, items, breakdown, o.CreatedAt, o.UpdatedAt)
	return mapError("orders.insert", err)
}

func (r *OrderRepository) Update(ctx context.Context, o domain.Order) error {
	items, breakdown, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	const q = `
        UPDATE orders
        SET customer_id=$2, delivery_id=$3, transaction_id=$4, amount_in_cents=$5, currency=$6, status=$7,
            payment_method=$8, items=$9, breakdown=$10, updated_at=$11
        WHERE id=$1`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		o.ID, o.CustomerID, o.DeliveryID, o.TransactionID, o.AmountInCents, o.Currency, string(o.Status),
		o.PaymentMethod, items, breakdown, o.UpdatedAt)
	if err != nil {
		return mapError("orders.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repositories.NewStoreError("orders.update", repositories.StoreErrorNotFound, "order not found", nil)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.findOne(ctx, "orders.get", `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
}

func (r *OrderRepository) FindByReference(ctx context.Context, reference string) (domain.Order, error) {
	return r.findOne(ctx, "orders.get_reference", `SELECT `+orderColumns+` FROM orders WHERE reference = $1`, reference)
}

func (r *OrderRepository) findOne(ctx context.Context, op, q string, arg string) (domain.Order, error) {
	var (
		o                domain.Order
		status           string
		items, breakdown []byte
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, q, arg).Scan(
		&o.ID, &o.Reference, &o.CustomerID, &o.DeliveryID, &o.TransactionID, &o.AmountInCents, &o.Currency, &status,
		&o.PaymentMethod, &items, &breakdown, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, mapError(op, err)
	}
	o.Status = domain.OrderStatus(status)

	var rows []itemRow
	if err := json.Unmarshal(items, &rows); err != nil {
		return domain.Order{}, fmt.Errorf("%s: decode items: %w", op, err)
	}
	for _, row := range rows {
		o.Items = append(o.Items, domain.OrderItem{ProductID: row.ProductID, Quantity: row.Quantity, UnitPriceCents: row.UnitPriceCents})
	}
	var b breakdownRow
	if err := json.Unmarshal(breakdown, &b); err != nil {
		return domain.Order{}, fmt.Errorf("%s: decode breakdown: %w", op, err)
	}
	o.Breakdown = domain.PriceBreakdown{SubtotalCents: b.SubtotalCents, ShippingCents: b.ShippingCents, TaxCents: b.TaxCents, TotalCents: b.TotalCents}
	return o, nil
}

func encodeOrderJSON(o domain.Order) ([]byte, []byte, error) {
	rows := make([]itemRow, 0, len(o.Items))
	for _, item := range o.Items {
		rows = append(rows, itemRow{ProductID: item.ProductID, Quantity: item.Quantity, UnitPriceCents: item.UnitPriceCents})
	}
	items, err := json.Marshal(rows)
	if err != nil {
		return nil, nil, fmt.Errorf("orders: encode items: %w", err)
	}
	breakdown, err := json.Marshal(breakdownRow{
		SubtotalCents: o.Breakdown.SubtotalCents,
		ShippingCents: o.Breakdown.ShippingCents,
		TaxCents:      o.Breakdown.TaxCents,
		TotalCents:    o.Breakdown.TotalCents,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("orders: encode breakdown: %w", err)
	}
	return items, breakdown, nil
}
