package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gomart/order-engine/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, image, price, count_in_stock
		FROM products WHERE id = $1`

	// The WHERE clause carries the stock precondition, making the
	// check-and-decrement one atomic statement. This is the only shared
	// mutable resource in the system and the only place a race could
	// oversell stock.
	reserveStockSQL = `UPDATE products
		SET count_in_stock = count_in_stock - $2
		WHERE id = $1 AND count_in_stock >= $2`

	releaseStockSQL = `UPDATE products
		SET count_in_stock = count_in_stock + $2
		WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var (
	_ product.Catalog   = (*ProductRepository)(nil)
	_ product.Inventory = (*ProductRepository)(nil)
)

// ProductRepository implements the catalog read and the inventory ledger
// backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}
	return &p, nil
}

// Reserve decrements available stock by qty only while at least qty units
// remain. Zero affected rows means the precondition failed; an existence
// probe distinguishes an unknown product from insufficient stock.
func (r *ProductRepository) Reserve(ctx context.Context, productID string, qty int) error {
	tag, err := r.pool.Exec(ctx, reserveStockSQL, productID, qty)
	if err != nil {
		return errors.Wrapf(err, "reserving %d of %q", qty, productID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.exists(ctx, productID)
	if err != nil {
		return err
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// Release returns qty units to available stock.
func (r *ProductRepository) Release(ctx context.Context, productID string, qty int) error {
	tag, err := r.pool.Exec(ctx, releaseStockSQL, productID, qty)
	if err != nil {
		return errors.Wrapf(err, "releasing %d of %q", qty, productID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "checking product %q", id)
	}
	return exists, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Image, &p.Price, &p.CountInStock)
	return p, err
}
