package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrInsufficientStock is returned when a decrement would drive stock negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// Product mirrors the products table:
//
//	CREATE TABLE products (
//	    id        BIGSERIAL PRIMARY KEY,
//	    name      TEXT    NOT NULL,
//	    price     NUMERIC NOT NULL,
//	    stock     NUMERIC NOT NULL DEFAULT 0,
//	    min_stock NUMERIC
//	);
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Stock    decimal.Decimal
	MinStock decimal.NullDecimal
}

// Movement is one stock mutation, kept for audit:
//
//	CREATE TABLE stock_movements (
//	    id         BIGSERIAL PRIMARY KEY,
//	    product_id BIGINT  NOT NULL REFERENCES products (id),
//	    quantity   NUMERIC NOT NULL,
//	    kind       TEXT    NOT NULL,
//	    note       TEXT    NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Movement struct {
	ProductID int64
	Quantity  decimal.Decimal
	Kind      string
	Note      string
	At        time.Time
}

const (
	MovementOut = "out"
	MovementIn  = "in"
)

type ProductRepository struct{}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{}
}

// Querier is satisfied by both pgxpool.Pool and pgx.Tx; reads that need no
// transaction run straight off the pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *ProductRepository) List(ctx context.Context, q Querier) ([]Product, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, price, stock, min_stock
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.MinStock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) GetByIDs(ctx context.Context, tx pgx.Tx, ids []int64) ([]Product, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, name, price, stock, min_stock
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.MinStock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// DecrementStock atomically subtracts qty and returns the remaining stock.
// The WHERE guard makes overselling impossible under concurrent sales.
func (r *ProductRepository) DecrementStock(ctx context.Context, tx pgx.Tx, id int64, qty decimal.Decimal) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`, id, qty).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, ErrInsufficientStock
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	return remaining, nil
}

// IncrementStock adds qty and returns the new stock level. pgx.ErrNoRows
// means the product does not exist.
func (r *ProductRepository) IncrementStock(ctx context.Context, tx pgx.Tx, id int64, qty decimal.Decimal) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1
		RETURNING stock
	`, id, qty).Scan(&remaining)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return remaining, nil
}

func (r *ProductRepository) InsertMovement(ctx context.Context, tx pgx.Tx, m Movement) error {
	at := m.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (product_id, quantity, kind, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ProductID, m.Quantity, m.Kind, m.Note, at)
	return err
}
