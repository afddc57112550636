// Package requestclient fetches one quote by walking a provider chain, retrying transient
// failures with exponential backoff before failing over to the next provider.
package requestclient

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/provider"
	"MarketPulse/internal/service/simulator"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
)

// ErrChainExhausted is only returned when no simulator is configured.
var ErrChainExhausted = errors.New("requestclient: provider chain exhausted")

// ChainSource resolves the provider chain for an instrument.
type ChainSource interface {
	Chain(category models.Category, symbol string) []models.ProviderID
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Jitter perturbs a backoff delay.
type Jitter func(d time.Duration) time.Duration

type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Class is the retry classification of a provider error.
type Class int

const (
	Terminal Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "terminal"
}

// Classify treats timeouts, transport errors, 408, 429 and 5xx as retryable.
func Classify(err error) Class {
	if err == nil {
		return Terminal
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode >= 500:
			return Retryable
		}
		return Terminal
	}
	if errors.Is(err, context.Canceled) {
		return Terminal
	}
	if xhttp.IsTimeout(err) || xhttp.IsNetwork(err) {
		return Retryable
	}
	return Terminal
}

type Option func(*Client)

func WithSleeper(s Sleeper) Option { return func(c *Client) { c.sleep = s } }

func WithJitter(j Jitter) Option { return func(c *Client) { c.jitter = j } }

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.Component("requestclient") }
}

func WithMetrics(m repository.Metrics) Option { return func(c *Client) { c.metrics = m } }

type Client struct {
	chains    ChainSource
	providers map[models.ProviderID]repository.Provider
	sim       *simulator.Simulator
	cfg       Config
	sleep     Sleeper
	jitter    Jitter
	log       *logger.Logger
	metrics   repository.Metrics
}

func New(chains ChainSource, providers []repository.Provider, sim *simulator.Simulator, cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	c := &Client{
		chains:    chains,
		providers: make(map[models.ProviderID]repository.Provider, len(providers)),
		sim:       sim,
		cfg:       cfg,
		sleep:     sleepCtx,
		jitter:    defaultJitter,
		log:       logger.NewNop(),
		metrics:   metrics.Noop{},
	}
	for _, p := range providers {
		c.providers[p.ID()] = p
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the first successful quote along the chain. Reaching MOCK returns a synthetic
// quote without a network call. Only caller cancellation produces an error in practice.
func (c *Client) Fetch(ctx context.Context, req models.Request) (*models.Quote, error) {
	key := req.Instrument
	if key == "" {
		key = req.Symbol
	}
	st := newAttempt(c.chains.Chain(req.Category, key), c.cfg)

	for !st.exhausted() {
		id := st.provider()
		if id == models.ProviderMock && c.sim != nil {
			c.metrics.RecordProviderRequest(string(id), "synthetic")
			return c.synthesize(req), nil
		}

		p, ok := c.providers[id]
		if !ok {
			c.log.Warn("provider not registered", logger.String("provider", string(id)))
			st = c.failover(st, id)
			continue
		}

		q, err := c.do(ctx, p, req)
		if err == nil {
			c.metrics.RecordProviderRequest(string(id), "success")
			return q, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		class := Classify(err)
		c.metrics.RecordProviderRequest(string(id), class.String())

		if class == Retryable && !req.SkipRetry && st.canRetry() {
			delay := c.jitter(st.backoff)
			c.log.Debug("retrying provider",
				logger.String("provider", string(id)),
				logger.String("symbol", req.Symbol),
				logger.Int("retries_left", st.retriesLeft),
				logger.Duration("delay_ms", delay),
				logger.Error(err),
			)
			c.metrics.RecordRetry(string(id))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			st = st.retry(c.cfg.MaxBackoff)
			continue
		}

		c.log.Warn("provider failed",
			logger.String("provider", string(id)),
			logger.String("symbol", req.Symbol),
			logger.String("class", class.String()),
			logger.Int("attempts", st.tries+1),
			logger.Error(err),
		)
		st = c.failover(st, id)
	}

	if c.sim != nil {
		return c.synthesize(req), nil
	}
	return nil, ErrChainExhausted
}

func (c *Client) do(ctx context.Context, p repository.Provider, req models.Request) (*models.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	q, err := p.Fetch(ctx, req)
	c.metrics.RecordLatency("provider_fetch", time.Since(start).Seconds())
	return q, err
}

func (c *Client) failover(st attempt, from models.ProviderID) attempt {
	if to := st.next(); to != "" {
		c.metrics.RecordFailover(string(from), string(to))
	}
	return st.failover(c.cfg)
}

func (c *Client) synthesize(req models.Request) *models.Quote {
	return provider.QuoteFromSnapshot(c.sim.Generate(req.Symbol, req.Category, 0))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// defaultJitter spreads d uniformly over [0.8d, 1.2d).
func defaultJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}
