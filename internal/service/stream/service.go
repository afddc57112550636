// Package stream multiplexes subscribers onto one update source per instrument.
package stream

import (
	"sort"
	"strings"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/simulator"
	"MarketPulse/internal/service/wsconn"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
)

// Callback receives every update of a subscribed instrument, in order.
type Callback func(models.MarketData)

// ChainSource resolves the provider chain of an instrument.
type ChainSource interface {
	Chain(category models.Category, symbol string) []models.ProviderID
}

type Config struct {
	ForceSimulation       bool
	SimulationInterval    time.Duration
	FastTickInterval      time.Duration
	FastTickPrefixes      []string
	NoWebSocketPrefixes   []string
	NoWebSocketCategories []string
	HeartbeatInterval     time.Duration
	ConnectTimeout        time.Duration
	ReconnectBaseDelay    time.Duration
	MaxReconnectAttempts  int
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l.Component("stream") }
}

func WithMetrics(m repository.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithConnFactory replaces how real-time connections are built.
func WithConnFactory(f ConnFactory) Option { return func(s *Service) { s.newConn = f } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type Service struct {
	cfg       Config
	sim       *simulator.Simulator
	chains    ChainSource
	endpoints Endpoints
	newConn   ConnFactory
	log       *logger.Logger
	metrics   repository.Metrics
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func New(cfg Config, sim *simulator.Simulator, chains ChainSource, eps Endpoints, opts ...Option) *Service {
	if cfg.SimulationInterval <= 0 {
		cfg.SimulationInterval = 2500 * time.Millisecond
	}
	if cfg.FastTickInterval <= 0 {
		cfg.FastTickInterval = time.Second
	}
	s := &Service{
		cfg:       cfg,
		sim:       sim,
		chains:    chains,
		endpoints: eps,
		log:       logger.NewNop(),
		metrics:   metrics.Noop{},
		now:       time.Now,
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newConn == nil {
		s.newConn = NewManagerFactory(wsconn.WithLogger(s.log))
	}
	return s
}

// Subscribe registers cb for symbol in category and returns its unsubscribe function.
// The first subscriber of a key creates the entry, seeded with initial when given.
// Later subscribers receive the latest value asynchronously before any newer update.
func (s *Service) Subscribe(symbol, category string, cb Callback, initial *models.MarketData) func() {
	cat := models.NormalizeCategory(category)
	key := models.Key(cat, symbol)

	s.mu.Lock()
	if s.closed || cb == nil {
		s.mu.Unlock()
		return func() {}
	}
	e, exists := s.entries[key]
	if !exists {
		e = newEntry(s, key, strings.TrimSpace(symbol), cat)
		if initial != nil {
			seed := initial.Clone()
			e.last = &seed
		}
		s.entries[key] = e
	}
	id := e.add(cb, exists)
	active := len(s.entries)
	s.mu.Unlock()

	s.metrics.SetActiveStreams(active)
	if !exists {
		e.begin()
		s.log.Info("stream opened",
			logger.String("key", key),
			logger.String("mode", string(e.currentMode())),
			logger.String("provider", string(e.provider)),
		)
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(e, id) })
	}
}

func (s *Service) unsubscribe(e *entry, id uint64) {
	s.mu.Lock()
	empty := e.remove(id)
	if empty && s.entries[e.key] == e {
		delete(s.entries, e.key)
	}
	active := len(s.entries)
	s.mu.Unlock()

	s.metrics.SetActiveStreams(active)
	if empty {
		go e.end()
		s.log.Info("stream closed", logger.String("key", e.key))
	}
}

// ActiveStreams is the number of live entries.
func (s *Service) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Info describes a live entry.
type Info struct {
	Key         string            `json:"key"`
	Provider    models.ProviderID `json:"provider,omitempty"`
	Mode        Mode              `json:"mode"`
	Subscribers int               `json:"subscribers"`
}

// Streams lists the live entries sorted by key.
func (s *Service) Streams() []Info {
	s.mu.Lock()
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, e := range list {
		out = append(out, e.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close tears down every entry. Subscribe is a no-op afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.end()
	}
	s.metrics.SetActiveStreams(0)
}

// plan picks the update source of a new entry.
func (s *Service) plan(symbol string, category models.Category) (models.ProviderID, Endpoint, bool) {
	if s.cfg.ForceSimulation || s.simulationOnly(symbol, category) {
		return models.ProviderMock, Endpoint{}, false
	}
	for _, id := range s.chains.Chain(category, symbol) {
		if id == models.ProviderMock {
			break
		}
		if ep, ok := s.endpoints.Resolve(id, symbol, category); ok {
			return id, ep, true
		}
	}
	return models.ProviderMock, Endpoint{}, false
}

func (s *Service) simulationOnly(symbol string, category models.Category) bool {
	for _, c := range s.cfg.NoWebSocketCategories {
		if models.NormalizeCategory(c) == category {
			return true
		}
	}
	return hasAnyPrefix(symbol, s.cfg.NoWebSocketPrefixes)
}

func (s *Service) simulationInterval(symbol string) time.Duration {
	if hasAnyPrefix(symbol, s.cfg.FastTickPrefixes) {
		return s.cfg.FastTickInterval
	}
	return s.cfg.SimulationInterval
}

func hasAnyPrefix(symbol string, prefixes []string) bool {
	up := strings.ToUpper(strings.TrimSpace(symbol))
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(up, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}
