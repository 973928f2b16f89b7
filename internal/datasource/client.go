package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/cache"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

// Source is one upstream provider of statistics. Implementations return the
// payload already normalised to this module's JSON shapes.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) (json.RawMessage, error)
}

type Config struct {
	FailureThreshold int
	FailureWindow    time.Duration
	CoolDown         time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ResponseTTL      time.Duration
	StaleRetention   time.Duration
	RateLimit        float64 // requests per second per source; <= 0 disables
	Burst            int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		CoolDown:         30 * time.Second,
		MaxRetries:       3,
		RetryBaseDelay:   200 * time.Millisecond,
		RetryMaxDelay:    5 * time.Second,
		ResponseTTL:      5 * time.Minute,
		StaleRetention:   24 * time.Hour,
		RateLimit:        1.5,
		Burst:            1,
	}
}

type sourceHandle struct {
	source  Source
	limiter *rate.Limiter
	breaker *sourceBreaker
}

// Client fetches from an ordered list of sources, falling through on
// failure and serving stale cache as a last resort.
type Client struct {
	cfg     Config
	sources []*sourceHandle
	store   cache.Store
	group   singleflight.Group
	backoff backoff
	logger  *logrus.Entry
	metrics *metrics.Manager
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

type ClientOption func(*Client)

func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.WithField("component", "data_client")
		}
	}
}

func WithMetrics(m *metrics.Manager) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock replaces the clock used for cache freshness and breaker
// snapshots.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(cfg Config, store cache.Store, sources []Source, opts ...ClientOption) (*Client, error) {
	if len(sources) == 0 {
		return nil, errors.New("at least one data source is required")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive, got %d", cfg.FailureThreshold)
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}

	c := &Client{
		cfg:    cfg,
		store:  store,
		logger: logrus.StandardLogger().WithField("component", "data_client"),
		now:    time.Now,
		sleep:  sleepContext,
		backoff: backoff{
			base:   cfg.RetryBaseDelay,
			factor: 2,
			max:    cfg.RetryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if seen[src.Name()] {
			return nil, fmt.Errorf("duplicate data source %q", src.Name())
		}
		seen[src.Name()] = true

		limit := rate.Inf
		if cfg.RateLimit > 0 {
			limit = rate.Limit(cfg.RateLimit)
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.sources = append(c.sources, &sourceHandle{
			source:  src,
			limiter: rate.NewLimiter(limit, burst),
			breaker: newSourceBreaker(src.Name(), cfg, func() time.Time { return c.now() }, c.logger, c.metrics),
		})
	}
	return c, nil
}

// Fetch returns fresh data from cache or the first healthy source. When
// every source fails it falls back to an expired cache entry flagged Stale,
// and only then to *models.DataUnavailableError.
func (c *Client) Fetch(ctx context.Context, req Request) (*Result, error) {
	key := req.CacheKey()

	if env, ok := c.cached(ctx, key); ok && c.fresh(env) {
		return &Result{Data: env.Data, Source: env.Source, FetchedAt: env.FetchedAt}, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetchFromSources(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

func (c *Client) fetchFromSources(ctx context.Context, req Request, key string) (*Result, error) {
	attempts := make([]models.SourceAttempt, 0, len(c.sources))

	for _, h := range c.sources {
		name := h.source.Name()
		log := logger.WithSourceContext(c.logger, name, string(req.Resource))
		start := time.Now()

		v, err := h.breaker.Execute(func() (interface{}, error) {
			return c.callWithRetry(ctx, h, req)
		})
		switch {
		case rejected(err):
			log.Debug("Circuit open, skipping source")
			c.metrics.RecordSourceFetch(name, "skipped", 0)
			attempts = append(attempts, models.SourceAttempt{Source: name, Skipped: true, Err: err})
			continue
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.WithError(err).Warn("Source fetch failed, trying next source")
			c.metrics.RecordSourceFetch(name, "failure", time.Since(start))
			attempts = append(attempts, models.SourceAttempt{Source: name, Err: err})
			continue
		}

		data := v.(json.RawMessage)
		c.metrics.RecordSourceFetch(name, "success", time.Since(start))
		fetchedAt := c.now()
		c.storeEnvelope(ctx, key, envelope{Data: data, Source: name, FetchedAt: fetchedAt}, log)
		return &Result{Data: data, Source: name, FetchedAt: fetchedAt}, nil
	}

	if env, ok := c.cached(ctx, key); ok {
		c.logger.WithFields(logrus.Fields{
			"resource":   req.Resource,
			"source":     env.Source,
			"fetched_at": env.FetchedAt,
		}).Warn("All sources failed, serving cached data")
		stale := !c.fresh(env)
		if stale {
			c.metrics.RecordStaleServed(string(req.Resource))
		}
		return &Result{Data: env.Data, Source: env.Source, Stale: stale, FetchedAt: env.FetchedAt}, nil
	}

	return nil, &models.DataUnavailableError{Resource: key, Attempts: attempts}
}

func (c *Client) callWithRetry(ctx context.Context, h *sourceHandle, req Request) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff.delay(attempt)); err != nil {
				return nil, err
			}
		}
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := h.source.Fetch(ctx, req)
		if err == nil {
			if !json.Valid(data) {
				return nil, fmt.Errorf("%s: %w", h.source.Name(), ErrMalformedResponse)
			}
			return data, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
		c.logger.WithFields(logrus.Fields{
			"source":  h.source.Name(),
			"attempt": attempt + 1,
		}).WithError(err).Debug("Retrying source call")
	}
	return nil, lastErr
}

func (c *Client) cached(ctx context.Context, key string) (envelope, bool) {
	var env envelope
	if err := cache.GetJSON(ctx, c.store, key, &env); err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.WithError(err).WithField("key", key).Warn("Response cache read failed")
		}
		return envelope{}, false
	}
	return env, true
}

func (c *Client) fresh(env envelope) bool {
	return c.now().Before(env.FetchedAt.Add(c.cfg.ResponseTTL))
}

func (c *Client) storeEnvelope(ctx context.Context, key string, env envelope, log *logrus.Entry) {
	retention := c.cfg.StaleRetention
	if retention < c.cfg.ResponseTTL {
		retention = c.cfg.ResponseTTL
	}
	if err := cache.SetJSON(ctx, c.store, key, env, retention); err != nil {
		log.WithError(err).Warn("Response cache write failed")
	}
}

// BreakerStates returns a snapshot of every source's breaker in priority order.
func (c *Client) BreakerStates() []models.CircuitBreakerState {
	out := make([]models.CircuitBreakerState, len(c.sources))
	for i, h := range c.sources {
		out[i] = h.breaker.Snapshot()
	}
	return out
}

// SourceNames lists the configured sources in priority order.
func (c *Client) SourceNames() []string {
	out := make([]string, len(c.sources))
	for i, h := range c.sources {
		out[i] = h.source.Name()
	}
	return out
}
