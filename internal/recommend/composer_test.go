package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/recommender/internal/affinity"
	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/store"
)

func catalogFixture() *fakeCatalog {
	var products []domain.Product
	for i := 0; i < 30; i++ {
		products = append(products, domain.Product{
			ID:         fmt.Sprintf("p%d", i),
			CategoryID: fmt.Sprintf("c%d", i%3),
			ShopID:     fmt.Sprintf("s%d", i%4),
			Price:      float64(10 + i),
		})
	}
	return &fakeCatalog{
		products: products,
		trending: append([]domain.Product(nil), products...),
	}
}

func composer(cat *fakeCatalog) *Composer {
	return NewComposer(cat, DefaultComposerConfig(), NewLockedRand(1), nil)
}

func TestCompose_NoDuplicatesAcrossSections(t *testing.T) {
	cat := catalogFixture()
	journal := fakeJournal{viewed: []string{"p3", "p1", "gone", "p2", "p4", "p5", "p6"}, categories: []string{"c1"}}

	sections := composer(cat).Compose(context.Background(), journal, domain.Marketplace)

	assert.Equal(t, []string{"p3", "p1", "p2", "p4"}, domain.ProductIDs(sections.RecentlyViewed), "five most recent ids, unresolved dropped")
	assert.Len(t, sections.InterestBased, 8)
	for _, p := range sections.InterestBased {
		assert.Equal(t, "c1", p.CategoryID)
	}
	assert.Len(t, sections.Trending, 8)

	seen := map[string]bool{}
	for _, id := range sections.ShownIDList() {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, sections.ShownIDs, len(seen))

	filters := cat.filters()
	require.Len(t, filters, 1)
	assert.Equal(t, []string{"c1"}, filters[0].CategoryIDs)
}

func TestCompose_UnfilteredPoolWithoutAffinity(t *testing.T) {
	cat := catalogFixture()

	sections := composer(cat).Compose(context.Background(), fakeJournal{}, domain.Scope{ShopID: "s1"})

	assert.Empty(t, sections.RecentlyViewed)
	filters := cat.filters()
	require.Len(t, filters, 1)
	assert.Empty(t, filters[0].CategoryIDs)
	assert.Len(t, sections.InterestBased, 8)
	for _, p := range sections.InterestBased {
		assert.Equal(t, "s1", p.ShopID)
	}
}

func TestCompose_SingleSellerKeepsPoolOrder(t *testing.T) {
	cat := catalogFixture()

	sections := composer(cat).Compose(context.Background(), fakeJournal{}, domain.Scope{ShopID: "s0"})

	assert.Equal(t, []string{"p0", "p4", "p8", "p12", "p16", "p20", "p24", "p28"}, domain.ProductIDs(sections.InterestBased))
}

func TestCompose_MultiSellerInterleaves(t *testing.T) {
	cat := catalogFixture()

	sections := composer(cat).Compose(context.Background(), fakeJournal{}, domain.Marketplace)

	for i := 1; i < len(sections.InterestBased); i++ {
		assert.NotEqual(t, sections.InterestBased[i-1].ShopID, sections.InterestBased[i].ShopID)
	}
}

func TestCompose_FailureIsolation(t *testing.T) {
	journal := fakeJournal{viewed: []string{"p1", "p2"}, categories: []string{"c0"}}

	tests := []struct {
		name         string
		mutate       func(c *fakeCatalog)
		wantRecent   int
		wantInterest int
		wantTrending int
	}{
		{name: "trending fails", mutate: func(c *fakeCatalog) { c.failTrending = true }, wantRecent: 2, wantInterest: 8, wantTrending: 0},
		{name: "pool fails", mutate: func(c *fakeCatalog) { c.failPool = true }, wantRecent: 2, wantInterest: 0, wantTrending: 8},
		{name: "by ids fails", mutate: func(c *fakeCatalog) { c.failByIDs = true }, wantRecent: 0, wantInterest: 8, wantTrending: 8},
		{name: "everything fails", mutate: func(c *fakeCatalog) {
			c.failTrending, c.failPool, c.failByIDs = true, true, true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := catalogFixture()
			tt.mutate(cat)

			sections := composer(cat).Compose(context.Background(), journal, domain.Marketplace)

			assert.Len(t, sections.RecentlyViewed, tt.wantRecent)
			assert.Len(t, sections.InterestBased, tt.wantInterest)
			assert.Len(t, sections.Trending, tt.wantTrending)

			// Failed sections are empty lists, not nil.
			assert.NotNil(t, sections.RecentlyViewed)
			assert.NotNil(t, sections.InterestBased)
			assert.NotNil(t, sections.Trending)
		})
	}
}

func TestCompose_WithTracker(t *testing.T) {
	ctx := context.Background()
	cat := catalogFixture()
	tracker := affinity.NewTracker(store.NewMemoryStore(), "sess")
	for _, id := range []string{"p2", "p5", "p8"} {
		tracker.TrackProductView(ctx, cat.products[mustIndex(t, cat.products, id)])
	}

	sections := composer(cat).Compose(ctx, tracker, domain.Marketplace)

	assert.Equal(t, []string{"p8", "p5", "p2"}, domain.ProductIDs(sections.RecentlyViewed))
	for _, p := range sections.InterestBased {
		assert.Equal(t, "c2", p.CategoryID)
		assert.NotContains(t, []string{"p2", "p5", "p8"}, p.ID)
	}
}

func TestExcludeShown(t *testing.T) {
	products := []domain.Product{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	shown := map[string]struct{}{"b": {}}

	assert.Equal(t, []string{"a", "c"}, domain.ProductIDs(ExcludeShown(products, shown, false)))
	assert.Equal(t, []string{"a", "b", "c"}, domain.ProductIDs(ExcludeShown(products, shown, true)))
	assert.Equal(t, []string{"a", "b", "c"}, domain.ProductIDs(ExcludeShown(products, nil, false)))
}

func mustIndex(t *testing.T, products []domain.Product, id string) int {
	t.Helper()
	for i, p := range products {
		if p.ID == id {
			return i
		}
	}
	t.Fatalf("no product %s", id)
	return -1
}
