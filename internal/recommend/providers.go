package recommend

import (
	"context"

	"storefront/recommender/internal/domain"
)

// CategoryProvider returns the flat category list of a scope.
type CategoryProvider interface {
	FetchCategories(ctx context.Context, scope domain.Scope) ([]domain.Category, error)
}

// ProductPoolProvider returns candidate products.
type ProductPoolProvider interface {
	FetchPool(ctx context.Context, scope domain.Scope, filter domain.PoolFilter) ([]domain.Product, error)
	FetchTrending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Product, error)
	// FetchByIDs omits ids that no longer resolve.
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

// Journal is the part of the affinity tracker the composer reads.
type Journal interface {
	RecentlyViewed(ctx context.Context) []domain.ViewedProductRecord
	TopCategories(ctx context.Context, limit int) []string
}
