package product

import (
	"context"

	"github.com/go-faster/errors"
)

// Sentinel errors for catalog and inventory operations.
var (
	// ErrNotFound is returned when no product exists for the given id.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a reservation asks for more
	// units than are currently available.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is the catalog collaborator's view of a product. The order engine
// reads price, name and image to snapshot them into orders, and mutates
// count_in_stock only through the Inventory interface.
type Product struct {
	ID           string
	Name         string
	Image        string
	Price        int64 // minor currency units
	CountInStock int
}

// Catalog provides read access to products.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}

// Inventory exposes the two stock mutations the order engine is allowed to
// perform. Both must be atomic conditional updates at the storage layer: a
// read-then-write implementation would oversell under concurrent orders.
type Inventory interface {
	// Reserve decrements available stock by qty if and only if at least
	// qty units remain. Returns ErrInsufficientStock when the precondition
	// fails and ErrNotFound for an unknown product.
	Reserve(ctx context.Context, productID string, qty int) error
	// Release increments available stock by qty, compensating an earlier
	// reservation. Returns ErrNotFound for an unknown product; callers
	// treat that as best-effort and log it.
	Release(ctx context.Context, productID string, qty int) error
}
