package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/metrics"
)

func engineFixture() *fakeCatalog {
	return &fakeCatalog{
		categories: []domain.Category{{ID: "C1"}, {ID: "C2", ParentID: "C1"}, {ID: "C3"}},
		products: []domain.Product{
			product("P1", "C1", 100, "S1"),
			product("P2", "C1", 95, "S1"),
			product("P3", "C2", 100, "S2"),
			product("P4", "C3", 500, "S1"),
			product("P5", "C1", 300, "S1"),
		},
	}
}

func newEngine(cat *fakeCatalog, m *metrics.Metrics) *Engine {
	return NewEngine(cat, cat, EngineConfig{
		RelatedLimit:   6,
		PriceBand:      0.3,
		PoolLimit:      100,
		IndexCacheSize: 8,
		IndexCacheTTL:  time.Minute,
		Composer:       DefaultComposerConfig(),
	}, NewLockedRand(42), m)
}

func TestEngine_ProductPage(t *testing.T) {
	cat := engineFixture()
	m := metrics.New()
	e := newEngine(cat, m)

	page, err := e.ProductPage(context.Background(), "sess:pdp", domain.Scope{ShopID: "S1"}, "P1")
	require.NoError(t, err)

	assert.Equal(t, "P1", page.Focal.ID)
	assert.Equal(t, domain.ModeSingleSeller, page.Mode)
	assert.Equal(t, []string{"P2", "P5"}, idsOf(page.Related))
	assert.Equal(t, []string{"P4"}, domain.ProductIDs(page.ExploreMore))
	assert.InDelta(t, 1, testutil.ToFloat64(m.RelatedItemsTotal.WithLabelValues(string(TierSubtreeBand))), 0)
}

func TestEngine_ProductPageMarketplace(t *testing.T) {
	e := newEngine(engineFixture(), nil)

	page, err := e.ProductPage(context.Background(), "sess:pdp", domain.Marketplace, "P1")
	require.NoError(t, err)

	assert.Equal(t, domain.ModeMultiSeller, page.Mode)
	assert.Equal(t, []string{"P2", "P5", "P3"}, idsOf(page.Related))
	assert.Equal(t, []string{"P4"}, domain.ProductIDs(page.ExploreMore))
}

func TestEngine_ProductPageNotFound(t *testing.T) {
	e := newEngine(engineFixture(), nil)

	_, err := e.ProductPage(context.Background(), "k", domain.Marketplace, "nope")

	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestEngine_ProductPageFocalFetchFails(t *testing.T) {
	cat := engineFixture()
	cat.failByIDs = true
	e := newEngine(cat, nil)

	_, err := e.ProductPage(context.Background(), "k", domain.Marketplace, "P1")

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "focal", fe.Source)
}

func TestEngine_Degradation(t *testing.T) {
	t.Run("categories fail", func(t *testing.T) {
		cat := engineFixture()
		cat.failCategories = true
		m := metrics.New()
		e := newEngine(cat, m)

		page, err := e.ProductPage(context.Background(), "k", domain.Scope{ShopID: "S1"}, "P1")
		require.NoError(t, err)
		// Without an index only the price band applies.
		assert.Equal(t, []string{"P2"}, idsOf(page.Related))
		assert.InDelta(t, 1, testutil.ToFloat64(m.FetchErrorsTotal.WithLabelValues("categories")), 0)
	})

	t.Run("pool fails", func(t *testing.T) {
		cat := engineFixture()
		cat.failPool = true
		m := metrics.New()
		e := newEngine(cat, m)

		page, err := e.ProductPage(context.Background(), "k", domain.Marketplace, "P1")
		require.NoError(t, err)
		assert.Empty(t, page.Related)
		assert.Empty(t, page.ExploreMore)
		assert.InDelta(t, 1, testutil.ToFloat64(m.FetchErrorsTotal.WithLabelValues("pool")), 0)
	})
}

func TestEngine_IndexCache(t *testing.T) {
	cat := engineFixture()
	m := metrics.New()
	e := newEngine(cat, m)
	ctx := context.Background()

	e.Index(ctx, domain.Marketplace)
	e.Index(ctx, domain.Marketplace)
	e.Index(ctx, domain.Scope{ShopID: "S1"})
	assert.Equal(t, 2, cat.categoryFetches)

	e.InvalidateIndex(domain.Marketplace)
	e.Index(ctx, domain.Marketplace)
	assert.Equal(t, 3, cat.categoryFetches)
	assert.InDelta(t, 1, testutil.ToFloat64(m.IndexCacheTotal.WithLabelValues("hit")), 0)

	cat.failCategories = true
	e.Index(ctx, domain.Scope{ShopID: "S9"})
	e.Index(ctx, domain.Scope{ShopID: "S9"})
	assert.Equal(t, 5, cat.categoryFetches, "failed builds are not cached")
}

func TestEngine_StaleComputationDiscarded(t *testing.T) {
	cat := engineFixture()
	cat.block = make(chan struct{})
	m := metrics.New()
	e := newEngine(cat, m)

	firstErr := make(chan error, 1)
	go func() {
		_, err := e.ProductPage(context.Background(), "sess:pdp", domain.Marketplace, "P1")
		firstErr <- err
	}()

	require.Eventually(t, func() bool { return len(cat.filters()) == 1 }, time.Second, time.Millisecond)

	secondDone := make(chan struct{})
	var secondPage *domain.ProductPage
	var secondErr error
	go func() {
		defer close(secondDone)
		secondPage, secondErr = e.ProductPage(context.Background(), "sess:pdp", domain.Marketplace, "P2")
	}()

	assert.ErrorIs(t, <-firstErr, domain.ErrStale)

	require.Eventually(t, func() bool { return len(cat.filters()) == 2 }, time.Second, time.Millisecond)
	close(cat.block)
	<-secondDone

	require.NoError(t, secondErr)
	assert.Equal(t, "P2", secondPage.Focal.ID)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StaleTotal), 0)
}

func TestEngine_BrowsePage(t *testing.T) {
	cat := catalogFixture()
	e := newEngine(cat, nil)

	sections := e.BrowsePage(context.Background(), fakeJournal{viewed: []string{"p1"}}, domain.Marketplace)

	assert.Equal(t, []string{"p1"}, domain.ProductIDs(sections.RecentlyViewed))
	assert.NotEmpty(t, sections.InterestBased)
	assert.NotEmpty(t, sections.Trending)
}
