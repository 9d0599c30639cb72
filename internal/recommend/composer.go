package recommend

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/metrics"
)

// ComposerConfig bounds the browse sections.
type ComposerConfig struct {
	RecentLimit    int
	InterestLimit  int
	TrendingLimit  int
	TopCategories  int
	PoolLimit      int
	SectionTimeout time.Duration
}

// DefaultComposerConfig returns the standard section sizes.
func DefaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		RecentLimit:    5,
		InterestLimit:  8,
		TrendingLimit:  8,
		TopCategories:  3,
		PoolLimit:      200,
		SectionTimeout: 3 * time.Second,
	}
}

// Composer builds the recently viewed, interest based and trending sections.
type Composer struct {
	pool    ProductPoolProvider
	cfg     ComposerConfig
	rng     Rand
	metrics *metrics.Metrics
}

func NewComposer(pool ProductPoolProvider, cfg ComposerConfig, rng Rand, m *metrics.Metrics) *Composer {
	return &Composer{pool: pool, cfg: cfg, rng: rng, metrics: m}
}

type sectionFetch struct {
	products []domain.Product
	err      error
}

// Compose returns the three sections for scope with no id repeated across them.
// A failed fetch empties only its own section; Compose itself never fails.
func (c *Composer) Compose(ctx context.Context, journal Journal, scope domain.Scope) domain.Sections {
	recentIDs := recentProductIDs(journal.RecentlyViewed(ctx), c.cfg.RecentLimit)
	topCategories := journal.TopCategories(ctx, c.cfg.TopCategories)

	var recent, interest, trending sectionFetch

	// Each fetch records its own failure so one section never cancels another.
	var g errgroup.Group
	g.Go(func() error {
		if len(recentIDs) == 0 {
			return nil
		}
		recent = c.fetch(ctx, "by_ids", func(ctx context.Context) ([]domain.Product, error) {
			return c.pool.FetchByIDs(ctx, recentIDs)
		})
		return nil
	})
	g.Go(func() error {
		interest = c.fetch(ctx, "pool", func(ctx context.Context) ([]domain.Product, error) {
			return c.pool.FetchPool(ctx, scope, domain.PoolFilter{CategoryIDs: topCategories, Limit: c.cfg.PoolLimit})
		})
		return nil
	})
	g.Go(func() error {
		// Over-fetch so dropping already shown items still leaves a full section.
		limit := c.cfg.TrendingLimit + c.cfg.RecentLimit + c.cfg.InterestLimit
		trending = c.fetch(ctx, "trending", func(ctx context.Context) ([]domain.Product, error) {
			return c.pool.FetchTrending(ctx, scope, limit)
		})
		return nil
	})
	_ = g.Wait()

	sections := domain.Sections{ShownIDs: make(map[string]struct{})}
	mode := domain.ModeFor(scope)

	sections.RecentlyViewed = orderByIDs(recent.products, recentIDs)
	markShown(sections.ShownIDs, sections.RecentlyViewed)

	sections.InterestBased = c.pick(interest.products, sections.ShownIDs, mode, c.cfg.InterestLimit)
	markShown(sections.ShownIDs, sections.InterestBased)

	sections.Trending = c.pick(trending.products, sections.ShownIDs, mode, c.cfg.TrendingLimit)
	markShown(sections.ShownIDs, sections.Trending)

	c.metrics.AddSectionItems("recently_viewed", len(sections.RecentlyViewed))
	c.metrics.AddSectionItems("interest_based", len(sections.InterestBased))
	c.metrics.AddSectionItems("trending", len(sections.Trending))

	return sections
}

// ExcludeShown drops products already shown in a section from a listing grid.
// An active category filter disables the exclusion so filtered browsing stays exhaustive.
func ExcludeShown(products []domain.Product, shown map[string]struct{}, categoryFilterActive bool) []domain.Product {
	if categoryFilterActive || len(shown) == 0 {
		return products
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if _, ok := shown[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func (c *Composer) fetch(ctx context.Context, source string, fn func(context.Context) ([]domain.Product, error)) sectionFetch {
	if c.cfg.SectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SectionTimeout)
		defer cancel()
	}

	products, err := fn(ctx)
	if err != nil {
		err = domain.NewFetchError(source, err)
		c.metrics.IncFetchError(domain.FetchErrorSource(err))
		log.WithField("source", source).Warnf("⚠️ Section fetch failed, section left empty: %v", err)
		return sectionFetch{err: err}
	}
	return sectionFetch{products: products}
}

// pick drops shown and duplicate products, interleaves by shop in multi-seller mode and truncates.
func (c *Composer) pick(products []domain.Product, shown map[string]struct{}, mode domain.Mode, limit int) []domain.Product {
	seen := make(map[string]struct{}, len(products))
	fresh := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if _, ok := shown[p.ID]; ok {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		fresh = append(fresh, p)
	}

	if mode == domain.ModeMultiSeller {
		fresh = Interleave(fresh, c.rng)
	}
	if len(fresh) > limit {
		fresh = fresh[:limit]
	}
	return fresh
}

func recentProductIDs(records []domain.ViewedProductRecord, limit int) []string {
	ids := make([]string, 0, limit)
	for _, r := range records {
		if len(ids) >= limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids
}

// orderByIDs returns the resolved products in journal order; unresolved ids are dropped.
func orderByIDs(products []domain.Product, ids []string) []domain.Product {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func markShown(shown map[string]struct{}, products []domain.Product) {
	for _, p := range products {
		shown[p.ID] = struct{}{}
	}
}
