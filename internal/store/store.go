// Package store defines persistence for products, price observations and
// provider configuration. Implementations live in sub-packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row (or no row the owner may see).
var ErrNotFound = errors.New("not found")

// Store is implemented by the sqlite and postgres backends.
// Every mutation runs in a single transaction.
type Store interface {
	// ListProducts returns every product across owners, oldest first.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	FindProduct(ctx context.Context, ownerID, url string) (*domain.Product, error)

	// ApplyRefresh overwrites the product metadata and appends one observation
	// atomically. With r.ProductID empty the product is upserted by (owner, url).
	ApplyRefresh(ctx context.Context, r domain.Refresh) (*domain.Product, error)

	ListObservations(ctx context.Context, productID string) ([]domain.PriceObservation, error)

	// ListTracked returns the derived views for an owner, skipping products without observations.
	ListTracked(ctx context.Context, ownerID string) ([]domain.TrackedProduct, error)
	GetTracked(ctx context.Context, productID string) (*domain.TrackedProduct, error)

	// DeleteProduct removes an owner's product and its observations.
	DeleteProduct(ctx context.Context, ownerID, productID string) error

	ActiveProviderConfig(ctx context.Context, ownerID string) (*domain.ProviderConfig, error)
	// SaveProviderConfig replaces the owner's config for the same provider and
	// makes it the only active one.
	SaveProviderConfig(ctx context.Context, cfg domain.ProviderConfig) (*domain.ProviderConfig, error)

	// DeleteOrphans removes products without observations created before cutoff.
	DeleteOrphans(ctx context.Context, cutoff time.Time) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// BuildTracked is shared by backends: it derives views and drops products
// that have no observation yet.
func BuildTracked(products []domain.Product, obsByProduct map[string][]domain.PriceObservation) ([]domain.TrackedProduct, error) {
	out := make([]domain.TrackedProduct, 0, len(products))
	for _, p := range products {
		view, err := domain.BuildTrackedProduct(p, obsByProduct[p.ID])
		if errors.Is(err, domain.ErrNoObservations) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}
