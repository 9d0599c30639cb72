package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storefront/recommender/internal/domain"
)

func TestBuildPoolQuery(t *testing.T) {
	tests := []struct {
		name      string
		scope     domain.Scope
		filter    domain.PoolFilter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "marketplace unfiltered",
			scope:     domain.Marketplace,
			filter:    domain.PoolFilter{Limit: 200},
			wantWhere: "WHERE active ORDER BY created_at DESC, id LIMIT $1",
			wantArgs:  []any{200},
		},
		{
			name:      "shop scope",
			scope:     domain.Scope{ShopID: "s1"},
			filter:    domain.PoolFilter{Limit: 50},
			wantWhere: "WHERE active AND shop_id = $1 ORDER BY created_at DESC, id LIMIT $2",
			wantArgs:  []any{"s1", 50},
		},
		{
			name:      "shop and categories",
			scope:     domain.Scope{ShopID: "s1"},
			filter:    domain.PoolFilter{CategoryIDs: []string{"c1", "c2"}, Limit: 8},
			wantWhere: "WHERE active AND shop_id = $1 AND category_id = ANY($2) ORDER BY created_at DESC, id LIMIT $3",
			wantArgs:  []any{"s1", []string{"c1", "c2"}, 8},
		},
		{
			name:      "marketplace categories",
			scope:     domain.Marketplace,
			filter:    domain.PoolFilter{CategoryIDs: []string{"c1"}, Limit: 10},
			wantWhere: "WHERE active AND category_id = ANY($1) ORDER BY created_at DESC, id LIMIT $2",
			wantArgs:  []any{[]string{"c1"}, 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildPoolQuery(tt.scope, tt.filter)
			assert.Contains(t, query, "SELECT "+productColumns+" FROM products ")
			assert.Contains(t, query, tt.wantWhere)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildTrendingQuery(t *testing.T) {
	query, args := buildTrendingQuery(domain.Scope{ShopID: "s9"}, 21)

	assert.Contains(t, query, "WHERE active AND shop_id = $1 ORDER BY view_count DESC, created_at DESC LIMIT $2")
	assert.Equal(t, []any{"s9", 21}, args)
}

func TestBuildCategoryQuery(t *testing.T) {
	query, args := buildCategoryQuery(domain.Marketplace)
	assert.NotContains(t, query, "WHERE")
	assert.Nil(t, args)

	query, args = buildCategoryQuery(domain.Scope{ShopID: "s1"})
	assert.Contains(t, query, "WHERE shop_id = $1 OR shop_id IS NULL")
	assert.Equal(t, []any{"s1"}, args)
}
