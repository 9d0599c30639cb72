package recommend

import (
	"context"
	"errors"
	"slices"
	"sync"

	"storefront/recommender/internal/domain"
)

var errBackend = errors.New("backend down")

// fakeCatalog serves canned data and records the filters it was asked for.
type fakeCatalog struct {
	mu sync.Mutex

	categories []domain.Category
	products   []domain.Product
	trending   []domain.Product

	failCategories bool
	failPool       bool
	failTrending   bool
	failByIDs      bool

	// block, when set, holds FetchPool until the channel is closed or ctx ends.
	block chan struct{}

	poolFilters     []domain.PoolFilter
	categoryFetches int
}

func (f *fakeCatalog) FetchCategories(ctx context.Context, _ domain.Scope) ([]domain.Category, error) {
	f.mu.Lock()
	f.categoryFetches++
	f.mu.Unlock()
	if f.failCategories {
		return nil, errBackend
	}
	return f.categories, nil
}

func (f *fakeCatalog) FetchPool(ctx context.Context, scope domain.Scope, filter domain.PoolFilter) ([]domain.Product, error) {
	f.mu.Lock()
	f.poolFilters = append(f.poolFilters, filter)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failPool {
		return nil, errBackend
	}

	var out []domain.Product
	for _, p := range f.products {
		if scope.ShopID != "" && p.ShopID != scope.ShopID {
			continue
		}
		if len(filter.CategoryIDs) > 0 && !slices.Contains(filter.CategoryIDs, p.CategoryID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) FetchTrending(_ context.Context, _ domain.Scope, limit int) ([]domain.Product, error) {
	if f.failTrending {
		return nil, errBackend
	}
	if len(f.trending) > limit {
		return f.trending[:limit], nil
	}
	return f.trending, nil
}

func (f *fakeCatalog) FetchByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	if f.failByIDs {
		return nil, errBackend
	}
	var out []domain.Product
	for _, p := range f.products {
		if slices.Contains(ids, p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) filters() []domain.PoolFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PoolFilter(nil), f.poolFilters...)
}

// fakeJournal is a fixed affinity journal.
type fakeJournal struct {
	viewed     []string
	categories []string
}

func (j fakeJournal) RecentlyViewed(context.Context) []domain.ViewedProductRecord {
	out := make([]domain.ViewedProductRecord, 0, len(j.viewed))
	for _, id := range j.viewed {
		out = append(out, domain.ViewedProductRecord{ID: id})
	}
	return out
}

func (j fakeJournal) TopCategories(_ context.Context, limit int) []string {
	if len(j.categories) > limit {
		return j.categories[:limit]
	}
	return j.categories
}
