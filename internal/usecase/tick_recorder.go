package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/stream"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
)

// Recorder backends.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// TickSource is the subscription side of the Orchestrator.
type TickSource interface {
	Subscribe(ctx context.Context, symbol, category string, cb stream.Callback) (models.MarketData, func())
}

// WatchItem is one instrument the recorder follows.
type WatchItem struct {
	Symbol   string
	Category string
}

type TickRecorderConfig struct {
	Backend       string
	Watchlist     []WatchItem
	BatchSize     int
	FlushInterval time.Duration
	Buffer        int
}

// TickRecorder follows the watchlist and writes every update to the configured backend.
// Backend errors are logged and counted, never fatal.
type TickRecorder struct {
	src     TickSource
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	log     *logger.Logger
	cfg     TickRecorderConfig

	ticks  chan *models.Tick
	mu     sync.Mutex
	unsubs []func()
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTickRecorder creates a new TickRecorder. pub and store may be nil when their backend is unused.
func NewTickRecorder(
	src TickSource,
	pub drepo.Publisher,
	store drepo.Storage,
	m drepo.Metrics,
	log *logger.Logger,
	cfg TickRecorderConfig,
) *TickRecorder {
	if cfg.Backend == "" {
		cfg.Backend = BackendNone
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if m == nil {
		m = metrics.Noop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TickRecorder{
		src:     src,
		pub:     pub,
		store:   store,
		metrics: m,
		log:     log.Component("tick_recorder"),
		cfg:     cfg,
		ticks:   make(chan *models.Tick, cfg.Buffer),
	}
}

// Enabled reports whether a backend is configured.
func (r *TickRecorder) Enabled() bool { return r.cfg.Backend != BackendNone }

// Start prepares the backend, subscribes to the watchlist and starts the writer loop.
func (r *TickRecorder) Start(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	if r.cfg.Backend == BackendClickHouse {
		if r.store == nil {
			return fmt.Errorf("tick recorder: clickhouse backend without storage")
		}
		if err := r.store.Init(ctx); err != nil {
			return fmt.Errorf("tick recorder init: %w", err)
		}
	}
	if r.cfg.Backend == BackendKafka && r.pub == nil {
		return fmt.Errorf("tick recorder: kafka backend without publisher")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()
	go r.loop(loopCtx)

	for _, w := range r.cfg.Watchlist {
		_, unsub := r.src.Subscribe(ctx, w.Symbol, w.Category, r.enqueue)
		r.mu.Lock()
		r.unsubs = append(r.unsubs, unsub)
		r.mu.Unlock()
	}
	r.log.Info("tick recorder started",
		logger.String("backend", r.cfg.Backend),
		logger.Int("instruments", len(r.cfg.Watchlist)),
	)
	return nil
}

func (r *TickRecorder) enqueue(md models.MarketData) {
	t := models.TickFromMarketData(md)
	select {
	case r.ticks <- &t:
	default:
		r.metrics.RecordError("tick_dropped")
	}
}

func (r *TickRecorder) loop(ctx context.Context) {
	defer close(r.done)
	t := time.NewTicker(r.cfg.FlushInterval)
	defer t.Stop()

	batch := make([]*models.Tick, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.ProcessBatch(wctx, batch); err != nil {
			r.log.Warn("tick batch failed", logger.Int("size", len(batch)), logger.Error(err))
		}
		cancel()
		batch = make([]*models.Tick, 0, r.cfg.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case tk := <-r.ticks:
					batch = append(batch, tk)
				default:
					flush()
					return
				}
			}
		case tk := <-r.ticks:
			batch = append(batch, tk)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-t.C:
			flush()
		}
	}
}

// Process writes a single tick to the configured backend.
func (r *TickRecorder) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}
	start := time.Now()
	var err error

	switch r.cfg.Backend {
	case BackendKafka:
		err = r.pub.Publish(ctx, t)
	case BackendClickHouse:
		err = r.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", r.cfg.Backend)
	}

	if err != nil {
		r.metrics.RecordError("record_tick")
		return fmt.Errorf("record tick: %w", err)
	}

	r.metrics.RecordTickSent(r.cfg.Backend, t.Symbol)
	r.metrics.RecordLatency("record_tick", time.Since(start).Seconds())
	return nil
}

// ProcessBatch writes ticks in one backend call.
func (r *TickRecorder) ProcessBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	start := time.Now()
	var err error

	switch r.cfg.Backend {
	case BackendKafka:
		err = r.pub.PublishBatch(ctx, ticks)
	case BackendClickHouse:
		err = r.store.StoreBatch(ctx, ticks)
	default:
		err = fmt.Errorf("unknown backend: %s", r.cfg.Backend)
	}

	if err != nil {
		r.metrics.RecordError("record_batch")
		return fmt.Errorf("record batch: %w", err)
	}

	for _, t := range ticks {
		r.metrics.RecordTickSent(r.cfg.Backend, t.Symbol)
	}
	r.metrics.RecordLatency("record_batch", time.Since(start).Seconds())
	return nil
}

// Shutdown unsubscribes, flushes what is buffered and closes the backend.
func (r *TickRecorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
	return nil
}
