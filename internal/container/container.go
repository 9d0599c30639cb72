package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storefront/recommender/internal/affinity"
	"storefront/recommender/internal/client"
	"storefront/recommender/internal/config"
	"storefront/recommender/internal/endpoint"
	"storefront/recommender/internal/metrics"
	"storefront/recommender/internal/queue"
	"storefront/recommender/internal/recommend"
	"storefront/recommender/internal/repository"
	"storefront/recommender/internal/server"
	"storefront/recommender/internal/service"
	"storefront/recommender/internal/store"
)

const (
	sessionTrackers   = 4096
	sessionTrackerTTL = 30 * time.Minute
)

// CatalogSource serves categories and candidate products to the engine.
type CatalogSource interface {
	recommend.CategoryProvider
	recommend.ProductPoolProvider
}

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Catalog    CatalogSource
	Repository repository.CatalogRepository
	Store      store.PersistentStore
	Sessions   *affinity.Manager
	Engine     *recommend.Engine
	Queue      queue.Queue
	Service    *service.Service
	Server     *server.Server

	client client.CatalogClient
	db     *pgxpool.Pool
	redis  *redis.Client
	badger *badger.DB
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Metrics: metrics.New(),
	}
	if err := c.init(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) init(ctx context.Context) error {
	cfg := c.Config

	if cfg.Redis.Enabled {
		if err := c.connectRedis(ctx); err != nil {
			return err
		}
	}

	if err := c.initCatalog(ctx); err != nil {
		return err
	}

	if err := c.initStore(); err != nil {
		return err
	}
	c.Sessions = affinity.NewManager(c.Store, c.Metrics, sessionTrackers, sessionTrackerTTL)

	c.Engine = recommend.NewEngine(c.Catalog, c.Catalog, engineConfig(cfg.Recommend), seededRand(cfg.Recommend.Seed), c.Metrics)

	// Popularity tracking needs a stream to carry views and a database to fold them into.
	var publisher server.ViewPublisher
	if c.redis != nil && c.Repository != nil {
		redisQueue, err := queue.NewRedisQueue(ctx, c.redis, cfg.Redis.ConsumerGroup)
		if err != nil {
			return err
		}
		c.Queue = redisQueue
		c.Service = service.NewService(c.Repository, redisQueue, c.Metrics, cfg.Redis.MinIdleTime)
		publisher = c.Service
	}

	c.Server = server.New(cfg.Server, c.Engine, c.Sessions, publisher, c.Metrics)
	return nil
}

func (c *Container) connectRedis(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.Database,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Connected to Redis successfully")
	c.redis = rdb
	return nil
}

func (c *Container) initCatalog(ctx context.Context) error {
	switch c.Config.CatalogSource {
	case "postgres":
		db, err := pgxpool.New(ctx, c.Config.Database.DSN())
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		c.db = db
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Info("✅ Connected to Postgres successfully")

		repo := repository.NewCatalogRepository(db, c.Config.Recommend.PoolLimit)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		c.Repository = repo
		c.Catalog = repo
	default:
		upstream := c.Config.Upstream
		endpoints := endpoint.NewSupplier(ctx, append([]string{upstream.BaseURL}, upstream.Mirrors...), upstream.HealthPath)
		c.client = client.NewCatalogClient(upstream, endpoints, c.Metrics)
		c.Catalog = c.client
		log.Infof("✅ Using upstream catalog with %d endpoint(s)", endpoints.Len())
	}
	return nil
}

func (c *Container) initStore() error {
	switch c.Config.Store.Backend {
	case "redis":
		if c.redis == nil {
			return errors.New("store backend redis requires redis.enabled")
		}
		c.Store = store.NewRedisStore(c.redis, c.Config.Store.TTL)
	case "badger":
		db, err := store.OpenBadger(c.Config.Badger.Path, c.Config.Badger.InMemory)
		if err != nil {
			return err
		}
		c.badger = db
		c.Store = store.NewBadgerStore(db, c.Config.Store.TTL)
	default:
		log.Warn("⚠️ Using in-memory affinity store, journals are lost on restart")
		c.Store = store.NewMemoryStore()
	}
	log.Infof("✅ Affinity journals stored in %s", c.Config.Store.Backend)
	return nil
}

// Run serves the API and, when configured, the popularity workers until ctx is done.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Server.Run(ctx)
	})

	if c.Service != nil {
		g.Go(func() error {
			return c.Service.RunWorkers(ctx, c.Config.Server.MaxWorkers)
		})
	}

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	var errs []error
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.badger != nil {
		errs = append(errs, c.badger.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("Container shut down successfully")
	return nil
}

func engineConfig(cfg config.RecommendConfig) recommend.EngineConfig {
	return recommend.EngineConfig{
		RelatedLimit:   cfg.RelatedLimit,
		PriceBand:      cfg.PriceBand,
		PoolLimit:      cfg.PoolLimit,
		IndexCacheSize: cfg.IndexCacheSize,
		IndexCacheTTL:  cfg.IndexCacheTTL,
		Composer: recommend.ComposerConfig{
			RecentLimit:    cfg.RecentLimit,
			InterestLimit:  cfg.InterestLimit,
			TrendingLimit:  cfg.TrendingLimit,
			TopCategories:  cfg.TopCategories,
			PoolLimit:      cfg.PoolLimit,
			SectionTimeout: cfg.SectionTimeout,
		},
	}
}

// seededRand returns a reproducible source for a non-zero seed.
func seededRand(seed int64) recommend.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return recommend.NewLockedRand(uint64(seed))
}
