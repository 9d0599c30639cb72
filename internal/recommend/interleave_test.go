package recommend

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/recommender/internal/domain"
)

func shopProducts(counts map[string]int, order []string) []domain.Product {
	var out []domain.Product
	for _, shop := range order {
		for i := 1; i <= counts[shop]; i++ {
			out = append(out, domain.Product{ID: fmt.Sprintf("%s%d", strings.ToLower(shop), i), ShopID: shop})
		}
	}
	return out
}

func TestInterleave_TwoShopsAlternate(t *testing.T) {
	input := shopProducts(map[string]int{"A": 3, "B": 2}, []string{"A", "B"})
	valid := map[string]bool{
		"a1,b1,a2,b2,a3": true,
		"b1,a1,b2,a2,a3": true,
	}

	outcomes := map[string]bool{}
	for seed := uint64(0); seed < 64; seed++ {
		got := strings.Join(domain.ProductIDs(Interleave(input, rand.New(rand.NewPCG(seed, seed)))), ",")
		require.True(t, valid[got], "unexpected order %s", got)
		outcomes[got] = true
	}

	assert.Len(t, outcomes, 2, "both bucket orders should be reachable")
}

func TestInterleave_AdjacencyProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	shops := []string{"A", "B", "C", "D", ""}

	for run := 0; run < 300; run++ {
		var input []domain.Product
		n := rng.IntN(40)
		for i := 0; i < n; i++ {
			shop := shops[rng.IntN(len(shops))]
			input = append(input, domain.Product{ID: fmt.Sprintf("p%d", i), ShopID: shop})
		}

		got := Interleave(input, rng)
		require.Len(t, got, len(input))
		assert.ElementsMatch(t, domain.ProductIDs(input), domain.ProductIDs(got))

		remaining := map[string]int{}
		for _, p := range input {
			remaining[p.ShopID]++
		}
		for i, p := range got {
			if i > 0 {
				nonEmpty := 0
				for _, n := range remaining {
					if n > 0 {
						nonEmpty++
					}
				}
				if nonEmpty > 1 {
					assert.NotEqual(t, got[i-1].ShopID, p.ShopID, "adjacent same shop at %d while other shops had items", i)
				}
			}
			remaining[p.ShopID]--
		}

		assertShopOrderKept(t, input, got)
	}
}

func TestInterleave_TailRun(t *testing.T) {
	input := shopProducts(map[string]int{"A": 4, "B": 1}, []string{"A", "B"})

	got := domain.ProductIDs(Interleave(input, rand.New(rand.NewPCG(9, 9))))

	// Once B is exhausted the remaining A items are necessarily consecutive.
	assert.Equal(t, []string{"a3", "a4"}, got[3:])
}

func TestInterleave_EdgeCases(t *testing.T) {
	assert.Empty(t, Interleave(nil, nil))

	one := []domain.Product{{ID: "x", ShopID: "A"}}
	assert.Equal(t, one, Interleave(one, nil))

	noShop := []domain.Product{{ID: "a"}, {ID: "b", ShopID: "S"}, {ID: "c"}}
	got := Interleave(noShop, nil)
	assert.Equal(t, got, Interleave(noShop, nil), "nil rng is deterministic")
	assertShopOrderKept(t, noShop, got)
}

func TestLockedRand_Concurrent(t *testing.T) {
	rng := NewLockedRand(1)
	input := shopProducts(map[string]int{"A": 3, "B": 3, "C": 3}, []string{"A", "B", "C"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.Len(t, Interleave(input, rng), 9)
			}
		}()
	}
	wg.Wait()
}

func assertShopOrderKept(t *testing.T, input, got []domain.Product) {
	t.Helper()
	perShop := func(list []domain.Product) map[string][]string {
		m := map[string][]string{}
		for _, p := range list {
			m[p.ShopID] = append(m[p.ShopID], p.ID)
		}
		return m
	}
	assert.Equal(t, perShop(input), perShop(got))
}
