package cmd

import (
	"context"
	"fmt"

	"github.com/greater-social/greater/internal/config"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/core/engine"
	"github.com/greater-social/greater/internal/core/offline"
	"github.com/greater-social/greater/internal/core/store"
	"github.com/greater-social/greater/internal/observability"
)

// session is everything a command needs to talk to one instance.
type session struct {
	cfg    *config.Config
	db     *store.Store
	client *client.Client
	queue  *offline.Queue
}

func (s *session) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// newClient builds the pipeline for cfg.Instance on top of db. Limiter
// state is kept in the store unless rate_limit.persist is off.
func newClient(cfg *config.Config, db *store.Store, metrics *observability.Metrics) *client.Client {
	c := client.NewClient(cfg.Instance)

	var limitStore engine.RateLimitStore = engine.NewMemoryStore()
	if cfg.RateLimit.Persist && db != nil {
		limitStore = db
	}
	c.Limiter = &engine.RateLimiter{
		Store:          limitStore,
		MaxRequests:    cfg.RateLimit.MaxRequests,
		Window:         cfg.RateLimit.Window,
		InitialBackoff: cfg.RateLimit.InitialBackoff,
		MaxBackoff:     cfg.RateLimit.MaxBackoff,
		Multiplier:     cfg.RateLimit.Multiplier,
	}
	c.Cache = client.NewRequestCache(cfg.Client.CacheTTL)
	if db != nil {
		c.Tokens = db
	}
	if cfg.Client.Timeout > 0 {
		c.Timeout = cfg.Client.Timeout
	}
	c.UserAgent = cfg.Client.UserAgent
	if !cfg.Client.Validate {
		c.Validator = nil
	}
	c.Logger = observability.Logger()
	c.Metrics = metrics
	return c
}

func newQueue(ctx context.Context, cfg *config.Config, db *store.Store, c *client.Client, metrics *observability.Metrics) (*offline.Queue, error) {
	q := offline.NewQueue(c.Instance, c, db.OfflinePosts(c.Instance), db)
	q.MaxRetries = cfg.Offline.MaxRetries
	q.Logger = observability.Logger()
	q.Metrics = metrics
	if err := q.Load(ctx); err != nil {
		return nil, fmt.Errorf("load offline queue: %w", err)
	}
	return q, nil
}

// openSession loads configuration and opens the store, client and queue.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireInstance(cfg); err != nil {
		return nil, err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.DefaultMetrics()
	}

	c := newClient(cfg, db, metrics)
	q, err := newQueue(ctx, cfg, db, c, metrics)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &session{cfg: cfg, db: db, client: c, queue: q}, nil
}
