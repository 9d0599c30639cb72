package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storefront/recommender/internal/domain"
)

// Schema creates the tables the repository reads. The storefront owns them in production.
const Schema = `
CREATE TABLE IF NOT EXISTS categories (
	id        TEXT PRIMARY KEY,
	parent_id TEXT,
	shop_id   TEXT,
	name      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	category_id TEXT,
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency    TEXT NOT NULL DEFAULT '',
	shop_id     TEXT,
	title       TEXT NOT NULL DEFAULT '',
	images      JSONB NOT NULL DEFAULT '[]',
	description TEXT NOT NULL DEFAULT '',
	view_count  BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	active      BOOLEAN NOT NULL DEFAULT true
);
CREATE INDEX IF NOT EXISTS products_shop_category_idx ON products (shop_id, category_id);
CREATE INDEX IF NOT EXISTS products_trending_idx ON products (view_count DESC, created_at DESC);
`

const productColumns = `id, COALESCE(category_id, ''), price, currency, COALESCE(shop_id, ''), title, images, description`

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type CatalogRepository interface {
	FetchCategories(ctx context.Context, scope domain.Scope) ([]domain.Category, error)
	FetchPool(ctx context.Context, scope domain.Scope, filter domain.PoolFilter) ([]domain.Product, error)
	FetchTrending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Product, error)
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	RecordProductView(ctx context.Context, productID string, n int) error
	RecordProductViews(ctx context.Context, counts map[string]int) error
	EnsureSchema(ctx context.Context) error
}

type catalogRepository struct {
	db        DBTX
	poolLimit int
}

func NewCatalogRepository(db DBTX, poolLimit int) CatalogRepository {
	if poolLimit <= 0 {
		poolLimit = 200
	}
	return &catalogRepository{
		db:        db,
		poolLimit: poolLimit,
	}
}

func (r *catalogRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// FetchCategories returns the categories of a shop, or every category for the marketplace.
func (r *catalogRepository) FetchCategories(ctx context.Context, scope domain.Scope) ([]domain.Category, error) {
	query, args := buildCategoryQuery(scope)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}

	return categories, nil
}

func (r *catalogRepository) FetchPool(ctx context.Context, scope domain.Scope, filter domain.PoolFilter) ([]domain.Product, error) {
	if filter.Limit <= 0 || filter.Limit > r.poolLimit {
		filter.Limit = r.poolLimit
	}
	query, args := buildPoolQuery(scope, filter)
	return r.queryProducts(ctx, "pool", query, args)
}

func (r *catalogRepository) FetchTrending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Product, error) {
	if limit <= 0 || limit > r.poolLimit {
		limit = r.poolLimit
	}
	query, args := buildTrendingQuery(scope, limit)
	return r.queryProducts(ctx, "trending", query, args)
}

func (r *catalogRepository) FetchByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE active AND id = ANY($1)`
	return r.queryProducts(ctx, "by_ids", query, []any{ids})
}

func (r *catalogRepository) RecordProductView(ctx context.Context, productID string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE products SET view_count = view_count + $2 WHERE id = $1`, productID, n)
	if err != nil {
		return fmt.Errorf("failed to record view of product %s: %w", productID, err)
	}
	return nil
}

// RecordProductViews applies aggregated view counts in one round trip.
func (r *catalogRepository) RecordProductViews(ctx context.Context, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(counts))
	for id, n := range counts {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	// Stable lock order across concurrent workers.
	sort.Strings(ids)

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`UPDATE products SET view_count = view_count + $2 WHERE id = $1`, id, counts[id])
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, id := range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to record views of product %s: %w", id, err)
		}
	}
	return nil
}

func (r *catalogRepository) queryProducts(ctx context.Context, source, query string, args []any) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s products: %w", source, err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var (
			p      domain.Product
			images []byte
		)
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Price, &p.Currency, &p.ShopID, &p.Title, &images, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if len(images) > 0 {
			if err := json.Unmarshal(images, &p.Images); err != nil {
				return nil, fmt.Errorf("failed to decode images of product %s: %w", p.ID, err)
			}
		}
		if p.Price < 0 {
			p.Price = 0
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s products: %w", source, err)
	}

	return products, nil
}

func buildCategoryQuery(scope domain.Scope) (string, []any) {
	query := `SELECT id, COALESCE(parent_id, ''), name FROM categories`
	if scope.IsMarketplace() {
		return query + ` ORDER BY id`, nil
	}
	return query + ` WHERE shop_id = $1 OR shop_id IS NULL ORDER BY id`, []any{scope.ShopID}
}

// buildPoolQuery returns active products, newest first, narrowed by shop and categories.
func buildPoolQuery(scope domain.Scope, filter domain.PoolFilter) (string, []any) {
	where, args := scopeConditions(scope)
	if len(filter.CategoryIDs) > 0 {
		args = append(args, filter.CategoryIDs)
		where = append(where, fmt.Sprintf("category_id = ANY($%d)", len(args)))
	}
	args = append(args, filter.Limit)

	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY created_at DESC, id LIMIT $%d`,
		productColumns, strings.Join(where, " AND "), len(args))
	return query, args
}

func buildTrendingQuery(scope domain.Scope, limit int) (string, []any) {
	where, args := scopeConditions(scope)
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY view_count DESC, created_at DESC LIMIT $%d`,
		productColumns, strings.Join(where, " AND "), len(args))
	return query, args
}

func scopeConditions(scope domain.Scope) ([]string, []any) {
	where := []string{"active"}
	var args []any
	if !scope.IsMarketplace() {
		args = append(args, scope.ShopID)
		where = append(where, fmt.Sprintf("shop_id = $%d", len(args)))
	}
	return where, args
}
