package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storefront/recommender/internal/catalog"
	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/metrics"
)

// EngineConfig tunes the engine.
type EngineConfig struct {
	RelatedLimit   int
	PriceBand      float64
	PoolLimit      int
	IndexCacheSize int
	IndexCacheTTL  time.Duration
	Composer       ComposerConfig
}

// Engine computes product page and browse page recommendations for a scope.
type Engine struct {
	categories CategoryProvider
	products   ProductPoolProvider
	pipeline   Pipeline
	composer   *Composer
	guard      *Guard
	rng        Rand
	indexes    *expirable.LRU[string, *catalog.Index]
	poolLimit  int
	metrics    *metrics.Metrics
}

func NewEngine(categories CategoryProvider, products ProductPoolProvider, cfg EngineConfig, rng Rand, m *metrics.Metrics) *Engine {
	if rng == nil {
		rng = NewLockedRand(uint64(time.Now().UnixNano()))
	}
	size := cfg.IndexCacheSize
	if size <= 0 {
		size = 128
	}

	return &Engine{
		categories: categories,
		products:   products,
		pipeline:   NewPipeline(cfg.RelatedLimit, cfg.PriceBand),
		composer:   NewComposer(products, cfg.Composer, rng, m),
		guard:      NewGuard(),
		rng:        rng,
		indexes:    expirable.NewLRU[string, *catalog.Index](size, nil, cfg.IndexCacheTTL),
		poolLimit:  cfg.PoolLimit,
		metrics:    m,
	}
}

// Mode returns multi-seller for the marketplace and single-seller for a shop.
func (e *Engine) Mode(scope domain.Scope) domain.Mode {
	return domain.ModeFor(scope)
}

// ProductPage computes the related and explore more lists for focalID.
//
// viewKey identifies the page the result is shown on. Starting a new computation for the
// same key cancels the previous one, which then returns domain.ErrStale. Category and pool
// fetch failures shrink the lists; a focal product that cannot be found yields
// domain.ErrProductNotFound.
func (e *Engine) ProductPage(ctx context.Context, viewKey string, scope domain.Scope, focalID string) (*domain.ProductPage, error) {
	token, ctx := e.guard.Begin(ctx, viewKey)
	defer token.Done()

	logger := log.WithFields(log.Fields{"product_id": focalID, "scope": scope.Key()})

	var (
		focal    []domain.Product
		focalErr error
		index    *catalog.Index
		pool     []domain.Product
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		focal, focalErr = e.products.FetchByIDs(gctx, []string{focalID})
		return focalErr
	})
	g.Go(func() error {
		index = e.Index(gctx, scope)
		return nil
	})
	g.Go(func() error {
		var err error
		pool, err = e.products.FetchPool(gctx, scope, domain.PoolFilter{Limit: e.poolLimit})
		if err != nil {
			err = domain.NewFetchError("pool", err)
			e.metrics.IncFetchError(domain.FetchErrorSource(err))
			logger.Warnf("⚠️ Candidate pool fetch failed, recommending nothing: %v", err)
			pool = nil
		}
		return nil
	})
	_ = g.Wait()

	if !token.Live() {
		e.metrics.IncStale()
		return nil, domain.ErrStale
	}
	if focalErr != nil {
		err := domain.NewFetchError("focal", focalErr)
		e.metrics.IncFetchError(domain.FetchErrorSource(err))
		return nil, err
	}

	product, ok := findProduct(focal, focalID)
	if !ok {
		return nil, fmt.Errorf("failed to resolve %q: %w", focalID, domain.ErrProductNotFound)
	}

	candidates := make([]domain.Product, 0, len(pool))
	for _, p := range pool {
		if p.ID != product.ID {
			candidates = append(candidates, p)
		}
	}

	mode := e.Mode(scope)
	related := e.pipeline.RelatedWithTiers(product, candidates, index, mode)
	relatedProducts := make([]domain.Product, 0, len(related))
	for _, r := range related {
		relatedProducts = append(relatedProducts, r.Product)
		e.metrics.IncRelated(r.Tier)
	}
	explore := e.pipeline.ExploreMore(product, candidates, relatedProducts, index, mode, e.rng)

	// A newer request may have started while the pipeline ran.
	if !token.Live() {
		e.metrics.IncStale()
		return nil, domain.ErrStale
	}

	logger.Debugf("Computed %d related and %d explore more items", len(related), len(explore))

	return &domain.ProductPage{
		Focal:       product,
		Related:     related,
		ExploreMore: explore,
		Mode:        mode,
	}, nil
}

// BrowsePage composes the marketplace sections for the journal owner.
func (e *Engine) BrowsePage(ctx context.Context, journal Journal, scope domain.Scope) domain.Sections {
	return e.composer.Compose(ctx, journal, scope)
}

// Index returns the category index of scope. Successful builds are cached; a failed
// fetch yields an empty index so category tiers are skipped.
func (e *Engine) Index(ctx context.Context, scope domain.Scope) *catalog.Index {
	key := scope.Key()
	if idx, ok := e.indexes.Get(key); ok {
		e.metrics.IncIndexCache("hit")
		return idx
	}
	e.metrics.IncIndexCache("miss")

	categories, err := e.categories.FetchCategories(ctx, scope)
	if err != nil {
		err = domain.NewFetchError("categories", err)
		e.metrics.IncFetchError(domain.FetchErrorSource(err))
		if !errors.Is(err, context.Canceled) {
			log.WithField("scope", key).Warnf("⚠️ Category fetch failed, category tiers skipped: %v", err)
		}
		return catalog.Build(nil)
	}

	idx := catalog.Build(categories)
	e.indexes.Add(key, idx)
	return idx
}

// InvalidateIndex drops the cached index of scope.
func (e *Engine) InvalidateIndex(scope domain.Scope) {
	e.indexes.Remove(scope.Key())
}

func findProduct(products []domain.Product, id string) (domain.Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}
