package cache

import (
	"context"
	"time"

	"tindahan/backend/internal/domain"
)

// CatalogCache holds the per-tenant sale-eligible catalog so POS terminals
// do not hit the database on every lookup. Implementations must treat a
// miss and an error as distinct outcomes; callers fall through to the
// store on either.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]domain.CatalogVariant, bool, error)
	Set(ctx context.Context, key string, value []domain.CatalogVariant, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]domain.CatalogVariant, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []domain.CatalogVariant, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
