package usecase

//go:generate mockgen -package=usecase_test -destination=mock_repository_test.go MarketPulse/internal/domain/repository Provider,Publisher,Storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/marketcache"
	"MarketPulse/internal/service/simulator"
	"MarketPulse/internal/service/stream"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
)

// QuoteSource answers one-off quotes along a provider chain.
type QuoteSource interface {
	Fetch(ctx context.Context, req models.Request) (*models.Quote, error)
}

// Streamer multiplexes live subscriptions.
type Streamer interface {
	Subscribe(symbol, category string, cb stream.Callback, initial *models.MarketData) func()
}

// MarketDataCache is the two-tier snapshot cache.
type MarketDataCache interface {
	Get(ctx context.Context, symbol string, category models.Category) (models.MarketData, marketcache.Freshness, bool)
	Put(ctx context.Context, symbol string, category models.Category, data models.MarketData, ttl time.Duration) error
	TTL(category models.Category) time.Duration
}

type OrchestratorConfig struct {
	ForceMock bool
	// SimulationOnly categories never reach a provider.
	SimulationOnly []models.Category
	BatchSize      int
	BatchPause     time.Duration
}

type OrchestratorOption func(*Orchestrator)

func WithOrchestratorLogger(l *logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = l.Component("orchestrator") }
}

func WithOrchestratorMetrics(m drepo.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the single entry point for market data. It never returns an error:
// every failure path ends in simulated data.
type Orchestrator struct {
	cfg     OrchestratorConfig
	quotes  QuoteSource
	cache   MarketDataCache
	sim     *simulator.Simulator
	streams Streamer
	log     *logger.Logger
	metrics drepo.Metrics
	now     func() time.Time
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	quotes QuoteSource,
	cache MarketDataCache,
	sim *simulator.Simulator,
	streams Streamer,
	opts ...OrchestratorOption,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	o := &Orchestrator{
		cfg:     cfg,
		quotes:  quotes,
		cache:   cache,
		sim:     sim,
		streams: streams,
		log:     logger.NewNop(),
		metrics: metrics.Noop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetMarketData returns the best available snapshot of symbol. baseValue > 0 seeds the
// simulator when it has to invent a value.
func (o *Orchestrator) GetMarketData(ctx context.Context, symbol, category string, baseValue float64) models.MarketData {
	start := o.now()
	defer func() { o.metrics.RecordLatency("get_market_data", o.now().Sub(start).Seconds()) }()

	cat := models.NormalizeCategory(category)
	symbol = strings.TrimSpace(symbol)

	cached, freshness, hit := o.cache.Get(ctx, symbol, cat)

	if o.simulationOnly(cat) {
		var md models.MarketData
		if hit {
			md = o.sim.Update(cached)
		} else {
			md = o.sim.Generate(symbol, cat, baseValue)
		}
		o.store(ctx, symbol, cat, md)
		return md
	}

	if hit && freshness == marketcache.Fresh {
		return cached
	}

	q, err := o.quotes.Fetch(ctx, models.Request{Symbol: symbol, Category: cat})
	var md models.MarketData
	switch {
	case err != nil:
		o.metrics.RecordError("market_data_fetch")
		o.log.Warn("quote fetch failed, using simulation",
			logger.String("symbol", symbol),
			logger.String("category", string(cat)),
			logger.Error(err),
		)
		md = o.sim.Generate(symbol, cat, baseValue)
	case q.Synthetic && baseValue > 0:
		md = o.sim.Generate(symbol, cat, baseValue)
	default:
		md = o.fromQuote(q, symbol, cat)
	}

	// a caller that gave up says nothing about the providers; keep the cache as it was
	if err != nil && ctx.Err() != nil {
		if hit {
			return cached
		}
		return md
	}

	synthetic := err != nil || q.Synthetic
	if synthetic && hit {
		o.log.Debug("serving stale entry over simulation",
			logger.String("symbol", symbol),
			logger.String("category", string(cat)),
		)
		return cached
	}

	o.store(ctx, symbol, cat, md)
	return md
}

// GetMarketDataBatch fetches reqs in groups of BatchSize, pausing between groups.
// Items that panic map to nil. Keys are models.Key(category, symbol).
func (o *Orchestrator) GetMarketDataBatch(ctx context.Context, reqs []models.Request) map[string]*models.MarketData {
	out := make(map[string]*models.MarketData, len(reqs))
	var mu sync.Mutex

	for i := 0; i < len(reqs); i += o.cfg.BatchSize {
		if i > 0 && o.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.cfg.BatchPause):
			}
		}

		end := min(i+o.cfg.BatchSize, len(reqs))
		var wg sync.WaitGroup
		for _, req := range reqs[i:end] {
			wg.Add(1)
			go func(req models.Request) {
				defer wg.Done()
				key := models.Key(models.NormalizeCategory(string(req.Category)), req.Symbol)
				md := o.safeGet(ctx, req)

				mu.Lock()
				out[key] = md
				mu.Unlock()
			}(req)
		}
		wg.Wait()
	}
	return out
}

func (o *Orchestrator) safeGet(ctx context.Context, req models.Request) (md *models.MarketData) {
	defer func() {
		if r := recover(); r != nil {
			o.metrics.RecordError("market_data_batch")
			o.log.Error("batch item panicked",
				logger.String("symbol", req.Symbol),
				logger.Any("panic", r),
			)
			md = nil
		}
	}()
	v := o.GetMarketData(ctx, req.Symbol, string(req.Category), 0)
	return &v
}

// Subscribe seeds the stream with the current snapshot and returns it with the unsubscribe func.
func (o *Orchestrator) Subscribe(ctx context.Context, symbol, category string, cb stream.Callback) (models.MarketData, func()) {
	initial := o.GetMarketData(ctx, symbol, category, 0)
	return initial, o.streams.Subscribe(symbol, category, cb, &initial)
}

func (o *Orchestrator) simulationOnly(cat models.Category) bool {
	if o.cfg.ForceMock {
		return true
	}
	for _, c := range o.cfg.SimulationOnly {
		if c == cat {
			return true
		}
	}
	return false
}

func (o *Orchestrator) store(ctx context.Context, symbol string, cat models.Category, md models.MarketData) {
	if err := o.cache.Put(ctx, symbol, cat, md, o.cache.TTL(cat)); err != nil {
		o.metrics.RecordError("cache_put")
		o.log.Warn("cache write failed",
			logger.String("symbol", symbol),
			logger.String("category", string(cat)),
			logger.Error(err),
		)
	}
}

// fromQuote turns a provider quote into a snapshot. One-off fetches are never real-time.
func (o *Orchestrator) fromQuote(q *models.Quote, symbol string, cat models.Category) models.MarketData {
	if q.Synthetic && q.Snapshot != nil {
		md := q.Snapshot.Clone()
		md.IsRealTime = false
		return md
	}

	now := o.now()
	at := q.ReceivedAt
	if at.IsZero() {
		at = now
	}
	open := q.Open
	if open <= 0 {
		open = q.Price - q.Change
	}

	history := append([]models.PricePoint(nil), q.History...)
	if len(history) == 0 {
		if open > 0 {
			history = append(history, models.PricePoint{Timestamp: at.Add(-24 * time.Hour), Price: open})
		}
		history = append(history, models.PricePoint{Timestamp: at, Price: q.Price})
	}

	name := q.Name
	if name == "" {
		name = strings.ToUpper(symbol)
	}
	change, pct := q.Change, q.ChangePercent
	if change == 0 && open > 0 {
		change = q.Price - open
	}
	if pct == 0 && open > 0 {
		pct = change / open * 100
	}

	md := models.MarketData{
		Symbol:           symbol,
		Name:             name,
		Category:         cat,
		CurrentPrice:     q.Price,
		Change24h:        change,
		ChangePercent24h: pct,
		High24h:          q.High,
		Low24h:           q.Low,
		PriceHistory:     history,
		LastUpdated:      at,
		IsRealTime:       false,
	}
	md.WidenRange()
	return md
}
