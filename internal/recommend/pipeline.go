package recommend

import (
	log "github.com/sirupsen/logrus"

	"storefront/recommender/internal/catalog"
	"storefront/recommender/internal/domain"
)

const (
	DefaultRelatedLimit = 6
	DefaultPriceBand    = 0.3
)

// Tier labels the rule that selected a related item.
type Tier string

const (
	TierSameShopSubtreeBand Tier = "same_shop_subtree_band"
	TierSameShopSubtree     Tier = "same_shop_subtree"
	TierSubtreeBand         Tier = "subtree_band"
	TierSubtree             Tier = "subtree"
	TierAncestorBand        Tier = "ancestor_band"
	TierAncestor            Tier = "ancestor"
	TierBand                Tier = "band"
	TierFallback            Tier = "fallback"
)

type tier struct {
	label Tier
	match func(p domain.Product) bool

	// fallback tiers only run when every earlier tier came up empty.
	fallback bool
}

// Pipeline selects related products by walking an ordered ladder of tiers.
// It holds no state and is safe for concurrent use.
type Pipeline struct {
	Limit     int     // Maximum related items, DefaultRelatedLimit when <= 0
	PriceBand float64 // Relative band half-width, DefaultPriceBand when <= 0
}

func NewPipeline(limit int, priceBand float64) Pipeline {
	return Pipeline{Limit: limit, PriceBand: priceBand}
}

// ComputeRelated returns at most k related products for focal using the default price band.
func ComputeRelated(focal domain.Product, pool []domain.Product, index *catalog.Index, mode domain.Mode, k int) []domain.Product {
	return Pipeline{Limit: k}.Related(focal, pool, index, mode)
}

// ComputeExploreMore returns the pool residual after related, same-category items first.
func ComputeExploreMore(focal domain.Product, pool, related []domain.Product, index *catalog.Index, mode domain.Mode, rng Rand) []domain.Product {
	return Pipeline{}.ExploreMore(focal, pool, related, index, mode, rng)
}

func (pl Pipeline) Related(focal domain.Product, pool []domain.Product, index *catalog.Index, mode domain.Mode) []domain.Product {
	ranked := pl.RelatedWithTiers(focal, pool, index, mode)
	out := make([]domain.Product, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Product)
	}
	return out
}

// RelatedWithTiers is Related with the selecting tier reported per item.
// Earlier tiers win; within a tier pool order is kept. The focal product and duplicates are skipped.
// The fallback tier fills the list only when nothing else matched.
func (pl Pipeline) RelatedWithTiers(focal domain.Product, pool []domain.Product, index *catalog.Index, mode domain.Mode) []domain.RankedProduct {
	limit := pl.limit()
	out := make([]domain.RankedProduct, 0, limit)
	seen := map[string]struct{}{focal.ID: {}}

	for _, t := range pl.tiers(focal, index, mode) {
		if len(out) >= limit || (t.fallback && len(out) > 0) {
			break
		}
		for _, p := range pool {
			if len(out) >= limit {
				break
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			if !t.match(p) {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, domain.RankedProduct{Product: p, Tier: string(t.label)})
		}
	}

	return out
}

// ExploreMore returns pool minus focal minus related, de-duplicated. Items in the focal
// category subtree come first. In multi-seller mode both partitions are shop-interleaved.
func (pl Pipeline) ExploreMore(focal domain.Product, pool, related []domain.Product, index *catalog.Index, mode domain.Mode, rng Rand) []domain.Product {
	excluded := make(map[string]struct{}, len(related)+1)
	excluded[focal.ID] = struct{}{}
	for _, r := range related {
		excluded[r.ID] = struct{}{}
	}

	subtree := focalSubtree(focal, index)

	var near, rest []domain.Product
	for _, p := range pool {
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		excluded[p.ID] = struct{}{}

		if inSet(subtree, p.CategoryID) {
			near = append(near, p)
		} else {
			rest = append(rest, p)
		}
	}

	if mode == domain.ModeMultiSeller {
		near = Interleave(near, rng)
		rest = Interleave(rest, rng)
	}

	out := make([]domain.Product, 0, len(near)+len(rest))
	out = append(out, near...)
	return append(out, rest...)
}

func (pl Pipeline) tiers(focal domain.Product, index *catalog.Index, mode domain.Mode) []tier {
	inBand := pl.band(focal)
	subtree := focalSubtree(focal, index)
	sameShop := func(p domain.Product) bool {
		return focal.ShopID != "" && p.ShopID == focal.ShopID
	}
	inSubtree := func(p domain.Product) bool {
		return inSet(subtree, p.CategoryID)
	}

	var tiers []tier
	if mode == domain.ModeMultiSeller {
		tiers = append(tiers,
			tier{label: TierSameShopSubtreeBand, match: func(p domain.Product) bool { return sameShop(p) && inSubtree(p) && inBand(p) }},
			tier{label: TierSameShopSubtree, match: func(p domain.Product) bool { return sameShop(p) && inSubtree(p) }},
		)
	}

	tiers = append(tiers,
		tier{label: TierSubtreeBand, match: func(p domain.Product) bool { return inSubtree(p) && inBand(p) }},
		tier{label: TierSubtree, match: inSubtree},
	)

	if subtree != nil {
		for _, ancestor := range index.Ancestors(focal.CategoryID) {
			ancestorTree := index.Subtree(ancestor)
			inAncestor := func(p domain.Product) bool { return inSet(ancestorTree, p.CategoryID) }
			tiers = append(tiers,
				tier{label: TierAncestorBand, match: func(p domain.Product) bool { return inAncestor(p) && inBand(p) }},
				tier{label: TierAncestor, match: inAncestor},
			)
		}
	}

	return append(tiers,
		tier{label: TierBand, match: inBand},
		tier{label: TierFallback, match: func(domain.Product) bool { return true }, fallback: true},
	)
}

// band returns the price band predicate; it never matches when focal has no price.
func (pl Pipeline) band(focal domain.Product) func(p domain.Product) bool {
	if !focal.HasPrice() {
		return func(domain.Product) bool { return false }
	}
	ratio := pl.PriceBand
	if ratio <= 0 {
		ratio = DefaultPriceBand
	}
	lo := focal.Price * (1 - ratio)
	hi := focal.Price * (1 + ratio)
	return func(p domain.Product) bool {
		return p.Price >= lo && p.Price <= hi
	}
}

func (pl Pipeline) limit() int {
	if pl.Limit <= 0 {
		return DefaultRelatedLimit
	}
	return pl.Limit
}

// focalSubtree returns the focal category subtree, or nil when the product has no category
// or its category is unknown. Both cases skip category based matching.
func focalSubtree(focal domain.Product, index *catalog.Index) map[string]struct{} {
	if focal.CategoryID == "" {
		return nil
	}
	if !index.Contains(focal.CategoryID) {
		log.WithField("product_id", focal.ID).Debug(domain.IntegrityWarning{Kind: "unknown_category", Ref: focal.CategoryID}.Error())
		return nil
	}
	return index.Subtree(focal.CategoryID)
}

func inSet(set map[string]struct{}, id string) bool {
	if id == "" || set == nil {
		return false
	}
	_, ok := set[id]
	return ok
}
