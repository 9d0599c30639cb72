package recommend

import (
	"math/rand/v2"
	"sync"

	"storefront/recommender/internal/domain"
)

// Rand is the randomness seam used for shop order shuffling.
type Rand interface {
	IntN(n int) int
}

const defaultSeed = 42

// Interleave reorders products so consecutive items come from different shops whenever
// more than one shop still has items left. Each shop keeps its internal order; only the
// order in which shops take turns is shuffled. Once a single shop remains its items are
// emitted back to back. A nil rng uses a fixed seed.
func Interleave(products []domain.Product, rng Rand) []domain.Product {
	if len(products) < 2 {
		return append([]domain.Product(nil), products...)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(defaultSeed, defaultSeed))
	}

	// Products without a shop share the bucket keyed by the empty id.
	var order []string
	buckets := make(map[string][]domain.Product)
	for _, p := range products {
		key := p.ShopID
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], p)
	}

	for i := len(order) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		order[i], order[j] = order[j], order[i]
	}

	out := make([]domain.Product, 0, len(products))
	for len(out) < len(products) {
		for _, key := range order {
			bucket := buckets[key]
			if len(bucket) == 0 {
				continue
			}
			out = append(out, bucket[0])
			buckets[key] = bucket[1:]
		}
	}

	return out
}

// lockedRand is a Rand shared by concurrent requests.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedRand returns a goroutine-safe Rand seeded with seed.
func NewLockedRand(seed uint64) Rand {
	return &lockedRand{rng: rand.New(rand.NewPCG(seed, seed))}
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}
