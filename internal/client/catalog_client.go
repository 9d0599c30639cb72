package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"storefront/recommender/internal/catalog"
	"storefront/recommender/internal/config"
	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/endpoint"
	"storefront/recommender/internal/metrics"
)

// CatalogClient reads categories and products from the upstream storefront API.
type CatalogClient interface {
	FetchCategories(ctx context.Context, scope domain.Scope) ([]domain.Category, error)
	FetchPool(ctx context.Context, scope domain.Scope, filter domain.PoolFilter) ([]domain.Product, error)
	FetchTrending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Product, error)
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	Close() error
}

type catalogClient struct {
	rl         ratelimit.Limiter
	config     config.UpstreamConfig
	endpoints  endpoint.Supplier
	httpClient *resty.Client
	normalizer *catalog.Normalizer
	breaker    *gobreaker.CircuitBreaker[gjson.Result]
	metrics    *metrics.Metrics
}

type Option func(c *catalogClient)

// WithTransport replaces the HTTP transport, used by tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *catalogClient) {
		c.httpClient.SetTransport(rt)
	}
}

func NewCatalogClient(cfg config.UpstreamConfig, endpoints endpoint.Supplier, m *metrics.Metrics, opts ...Option) CatalogClient {
	httpClient := resty.New().
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "storefront-recommender/1.0").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetHeader("X-API-Key", cfg.APIKey)
	}

	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 50
	}

	c := &catalogClient{
		rl:         ratelimit.New(rps),
		config:     cfg,
		endpoints:  endpoints,
		httpClient: httpClient,
		normalizer: catalog.NewNormalizer(cfg.DefaultCurrency),
		metrics:    m,
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[gjson.Result](gobreaker.Settings{
		Name:        "upstream-catalog",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warnf("🚫 Circuit breaker %s opened, upstream requests disabled for %v", name, cfg.BreakerTimeout)
				return
			}
			log.Infof("✅ Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *catalogClient) FetchCategories(ctx context.Context, scope domain.Scope) ([]domain.Category, error) {
	raw, err := c.fetchJSON(ctx, "categories", "/categories", scopeQuery(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories for %s: %w", scope.Key(), err)
	}

	categories := c.normalizer.Categories(raw)
	log.Debugf("Fetched %d categories for %s", len(categories), scope.Key())
	return categories, nil
}

func (c *catalogClient) FetchPool(ctx context.Context, scope domain.Scope, filter domain.PoolFilter) ([]domain.Product, error) {
	query := scopeQuery(scope)
	if len(filter.CategoryIDs) > 0 {
		query["category"] = strings.Join(filter.CategoryIDs, ",")
	}
	if filter.Limit > 0 {
		query["limit"] = strconv.Itoa(filter.Limit)
	}

	raw, err := c.fetchJSON(ctx, "pool", "/products", query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product pool for %s: %w", scope.Key(), err)
	}
	return c.normalizer.Products(raw), nil
}

func (c *catalogClient) FetchTrending(ctx context.Context, scope domain.Scope, limit int) ([]domain.Product, error) {
	query := scopeQuery(scope)
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}

	raw, err := c.fetchJSON(ctx, "trending", "/products/trending", query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trending products for %s: %w", scope.Key(), err)
	}
	return c.normalizer.Products(raw), nil
}

// FetchByIDs drops products the upstream no longer knows and anything it was not asked for.
func (c *catalogClient) FetchByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := c.fetchJSON(ctx, "by_ids", "/products", map[string]string{"ids": strings.Join(ids, ",")})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %d products by id: %w", len(ids), err)
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	products := c.normalizer.Products(raw)
	out := products[:0]
	for _, p := range products {
		if _, ok := wanted[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *catalogClient) Close() error {
	return c.httpClient.Close()
}

func (c *catalogClient) fetchJSON(ctx context.Context, route, path string, query map[string]string) (gjson.Result, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (gjson.Result, error) {
		return c.get(ctx, path, query)
	})

	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "circuit_open"
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case err != nil:
		outcome = "error"
	}
	c.metrics.ObserveUpstream(route, outcome, time.Since(start))

	return result, err
}

// get performs one GET. A 429 or 503 from one endpoint is retried once on the next one.
func (c *catalogClient) get(ctx context.Context, path string, query map[string]string) (gjson.Result, error) {
	c.rl.Take()

	url := c.endpoints.Get() + path
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)

	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return gjson.Result{}, fmt.Errorf("failed to fetch URL: %w", err)
	}

	if overloaded(resp.StatusCode()) && c.endpoints.Len() > 1 {
		next := c.endpoints.Get() + path
		log.Warnf("🔄 Upstream %s answered %d, switching to %s", url, resp.StatusCode(), next)

		c.rl.Take()
		retryResp, retryErr := c.httpClient.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get(next)
		if retryErr == nil {
			url, resp = next, retryResp
		}
	}

	if resp.IsError() {
		return gjson.Result{}, &StatusError{Code: resp.StatusCode(), URL: url}
	}

	body := resp.Bytes()
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w from %s", ErrInvalidPayload, url)
	}
	return gjson.ParseBytes(body), nil
}

func overloaded(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

func scopeQuery(scope domain.Scope) map[string]string {
	query := map[string]string{}
	if !scope.IsMarketplace() {
		query["shop"] = scope.ShopID
	}
	return query
}
