package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/config"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

// Registry is the Postgres implementation of repositories.Registry.
type Registry struct {
	db           *sql.DB
	products     *ProductRepository
	customers    *CustomerRepository
	deliveries   *DeliveryRepository
	orders       *OrderRepository
	transactions *TransactionRepository
}

// Open connects with the pgx driver, verifies the connection and creates missing tables.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Registry, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping db: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewRegistry(db), nil
}

// NewRegistry wraps an already configured database handle.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{
		db:           db,
		products:     &ProductRepository{db: db},
		customers:    &CustomerRepository{db: db},
		deliveries:   &DeliveryRepository{db: db},
		orders:       &OrderRepository{db: db},
		transactions: &TransactionRepository{db: db},
	}
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            price_cents BIGINT NOT NULL,
            stock BIGINT NOT NULL CHECK (stock >= 0),
            active BOOLEAN NOT NULL DEFAULT TRUE
        )`,
		`CREATE TABLE IF NOT EXISTS customers (
            id TEXT PRIMARY KEY,
            email TEXT UNIQUE NOT NULL,
            full_name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS deliveries (
            id TEXT PRIMARY KEY,
            address TEXT NOT NULL,
            city TEXT NOT NULL,
            region TEXT NOT NULL DEFAULT '',
            postal_code TEXT NOT NULL DEFAULT '',
            country TEXT NOT NULL,
            status TEXT NOT NULL,
            estimated_delivery_date TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            reference TEXT UNIQUE NOT NULL,
            customer_id TEXT NOT NULL REFERENCES customers(id),
            delivery_id TEXT NOT NULL DEFAULT '',
            transaction_id TEXT NOT NULL DEFAULT '',
            amount_in_cents BIGINT NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            payment_method TEXT NOT NULL DEFAULT '',
            items JSONB NOT NULL,
            breakdown JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS transactions (
            id TEXT PRIMARY KEY,
            external_id TEXT NOT NULL DEFAULT '',
            provider TEXT NOT NULL,
            reference TEXT NOT NULL,
            order_id TEXT NOT NULL REFERENCES orders(id),
            amount_in_cents BIGINT NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            status_message TEXT NOT NULL DEFAULT '',
            payment_method_type TEXT NOT NULL,
            payment_data JSONB,
            signature TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            finalized_at TIMESTAMPTZ
        )`,
		`CREATE INDEX IF NOT EXISTS transactions_external_idx ON transactions (provider, external_id)`,
		`CREATE INDEX IF NOT EXISTS transactions_status_created_idx ON transactions (status, created_at)`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

type txKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction bound to ctx, falling back to the pool.
func conn(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return db
}

func inTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok && tx != nil
}

// RunInTx opens a serializable transaction unless ctx already carries one.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapError("tx.begin", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("tx.commit", err)
	}
	return nil
}

func (r *Registry) Ping(ctx context.Context) error {
	return mapError("ping", r.db.PingContext(ctx))
}

func (r *Registry) Close(context.Context) error {
	return r.db.Close()
}

func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Customers() repositories.CustomerRepository       { return r.customers }
func (r *Registry) Deliveries() repositories.DeliveryRepository      { return r.deliveries }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }

// mapError converts driver errors into repositories.StoreError values.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repositories.NewStoreError(op, repositories.StoreErrorNotFound, "not found", nil)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01", "23514":
			return repositories.NewStoreError(op, repositories.StoreErrorConflict, pgErr.Message, err)
		case "57P01", "57P03", "53300":
			return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, pgErr.Message, err)
		}
		return repositories.NewStoreError(op, repositories.StoreErrorUnknown, pgErr.Message, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || pgconn.Timeout(err) {
		return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, "connection unavailable", err)
	}
	return repositories.NewStoreError(op, repositories.StoreErrorUnknown, "", err)
}

var _ repositories.Registry = (*Registry)(nil)
