// Package simulator produces synthetic market snapshots when no live provider answers,
// and evolves them for simulated streams.
package simulator

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
)

const (
	historyHours  = 24
	minBaseFactor = 0.1
	updateDamping = 0.2
	continueProb  = 0.8
)

// Option configures Simulator.
type Option func(*Simulator)

// WithSeed fixes the RNG seed.
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(l *logger.Logger) Option {
	return func(s *Simulator) { s.log = l.Component("simulator") }
}

// Simulator is safe for concurrent use. Its RNG is seeded once, so successive calls evolve.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
	log *logger.Logger
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate builds a 24-point hourly history ending now. baseValue > 0 overrides the base price.
func (s *Simulator) Generate(symbol string, category models.Category, baseValue float64) (out models.MarketData) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("generate panicked", logger.String("symbol", symbol), logger.Any("panic", r))
			out = s.baseline(symbol, category, baseValue)
		}
	}()

	p := profileFor(category)
	base, name := s.basePrice(symbol, category, baseValue)
	seed := symbolSeed(symbol)
	floor := base * minBaseFactor
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// seed parity picks the drift direction, the RNG its size
	dir := 1.0
	if seed%2 == 1 {
		dir = -1.0
	}
	dailyTrend := dir * (0.5 + s.rng.Float64()) * p.Volatility * 3

	history := make([]models.PricePoint, 0, historyHours)
	walk := 0.0
	high, low := 0.0, math.MaxFloat64
	for i := 0; i < historyHours; i++ {
		walk += (s.rng.Float64()*2 - 1) * p.Volatility
		trend := dailyTrend * p.TrendStrength * (float64(i) / historyHours)
		price := roundPrice(math.Max(base*(1+walk+trend), floor))
		history = append(history, models.PricePoint{
			Timestamp: now.Add(-time.Duration(historyHours-1-i) * time.Hour),
			Price:     price,
		})
		high = math.Max(high, price)
		low = math.Min(low, price)
	}

	first, last := history[0].Price, history[len(history)-1].Price
	return models.MarketData{
		Symbol:           symbol,
		Name:             name,
		Category:         category,
		CurrentPrice:     last,
		Change24h:        roundPrice(last - first),
		ChangePercent24h: percent(first, last),
		High24h:          high,
		Low24h:           low,
		PriceHistory:     history,
		LastUpdated:      now,
		IsRealTime:       false,
	}
}

// Update advances prev by one small step. Returns prev unchanged when it cannot be evolved.
func (s *Simulator) Update(prev models.MarketData) (out models.MarketData) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("update panicked", logger.String("symbol", prev.Symbol), logger.Any("panic", r))
			out = prev
		}
	}()

	if len(prev.PriceHistory) == 0 || prev.CurrentPrice <= 0 || math.IsNaN(prev.CurrentPrice) {
		return prev
	}

	category := prev.Category
	if category == "" {
		category = InferCategory(prev.Name, prev.Symbol)
	}
	p := profileFor(category)
	magnitude := p.Volatility * updateDamping

	dir := 0.0
	if n := len(prev.PriceHistory); n >= 2 {
		dir = math.Copysign(1, prev.PriceHistory[n-1].Price-prev.PriceHistory[n-2].Price)
	}

	s.mu.Lock()
	var step float64
	if dir != 0 && s.rng.Float64() < continueProb {
		step = dir * s.rng.Float64() * magnitude
	} else {
		step = (s.rng.Float64()*2 - 1) * magnitude
	}
	s.mu.Unlock()

	next := prev.Clone()
	next.Category = category
	price := roundPrice(prev.CurrentPrice * (1 + step))
	if price <= 0 {
		price = prev.CurrentPrice
	}
	now := s.now()

	next.CurrentPrice = price
	next.High24h = math.Max(prev.High24h, price)
	if prev.Low24h > 0 {
		next.Low24h = math.Min(prev.Low24h, price)
	} else {
		next.Low24h = price
	}
	next.AppendHistory(models.PricePoint{Timestamp: now, Price: price})
	first := next.PriceHistory[0].Price
	next.Change24h = roundPrice(price - first)
	next.ChangePercent24h = percent(first, price)
	next.LastUpdated = now
	next.IsRealTime = false
	return next
}

func (s *Simulator) baseline(symbol string, category models.Category, baseValue float64) models.MarketData {
	base, name := s.basePrice(symbol, category, baseValue)
	now := s.now()
	history := make([]models.PricePoint, historyHours)
	for i := range history {
		history[i] = models.PricePoint{Timestamp: now.Add(-time.Duration(historyHours-1-i) * time.Hour), Price: base}
	}
	return models.MarketData{
		Symbol:       symbol,
		Name:         name,
		Category:     category,
		CurrentPrice: base,
		High24h:      base,
		Low24h:       base,
		PriceHistory: history,
		LastUpdated:  now,
	}
}

func (s *Simulator) basePrice(symbol string, category models.Category, baseValue float64) (float64, string) {
	in, known := lookupInstrument(symbol)
	name := strings.ToUpper(symbol)
	if known {
		name = in.name
	}
	switch {
	case baseValue > 0:
		return baseValue, name
	case known:
		return in.base, name
	}
	seed := symbolSeed(symbol)
	scale := 0.5 + float64(seed%100)/100
	return roundPrice(profileFor(category).Base * scale), name
}

func symbolSeed(symbol string) int {
	sum := 0
	for _, r := range symbol {
		sum += int(r)
	}
	return sum
}

func percent(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return math.Round((to-from)/from*100*100) / 100
}

func roundPrice(v float64) float64 {
	var places float64
	switch a := math.Abs(v); {
	case a >= 1000:
		places = 2
	case a >= 1:
		places = 4
	default:
		places = 6
	}
	m := math.Pow(10, places)
	return math.Round(v*m) / m
}
