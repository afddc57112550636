package models

import "time"

// MaxHistoryPoints bounds PriceHistory; the oldest points are evicted first.
const MaxHistoryPoints = 100

// PricePoint is one sample of an instrument's price history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// MarketData is the canonical snapshot exchanged between every component.
// PriceHistory is chronological and never empty once a value has been built.
type MarketData struct {
	Symbol           string       `json:"symbol"`
	Name             string       `json:"name"`
	Category         Category     `json:"category"`
	CurrentPrice     float64      `json:"currentPrice"`
	Change24h        float64      `json:"change24h"`
	ChangePercent24h float64      `json:"changePercent24h"`
	High24h          float64      `json:"high24h"`
	Low24h           float64      `json:"low24h"`
	PriceHistory     []PricePoint `json:"priceHistory"`
	LastUpdated      time.Time    `json:"lastUpdated"`
	IsRealTime       bool         `json:"isRealTime"`
}

// Clone returns a deep copy so callers can mutate history without sharing the backing array.
func (m MarketData) Clone() MarketData {
	out := m
	if m.PriceHistory != nil {
		out.PriceHistory = make([]PricePoint, len(m.PriceHistory))
		copy(out.PriceHistory, m.PriceHistory)
	}
	return out
}

// AppendHistory appends p and truncates the history to the newest MaxHistoryPoints.
func (m *MarketData) AppendHistory(p PricePoint) {
	m.PriceHistory = append(m.PriceHistory, p)
	if n := len(m.PriceHistory); n > MaxHistoryPoints {
		trimmed := make([]PricePoint, MaxHistoryPoints)
		copy(trimmed, m.PriceHistory[n-MaxHistoryPoints:])
		m.PriceHistory = trimmed
	}
}

// LastPoint returns the newest history point, if any.
func (m MarketData) LastPoint() (PricePoint, bool) {
	if len(m.PriceHistory) == 0 {
		return PricePoint{}, false
	}
	return m.PriceHistory[len(m.PriceHistory)-1], true
}

// WidenRange keeps High24h >= CurrentPrice >= Low24h.
func (m *MarketData) WidenRange() {
	if m.High24h < m.CurrentPrice || m.High24h == 0 {
		m.High24h = m.CurrentPrice
	}
	if m.Low24h > m.CurrentPrice || m.Low24h == 0 {
		m.Low24h = m.CurrentPrice
	}
}

// Tick is a streamed or recorded price observation, the unit written to tick sinks.
type Tick struct {
	Symbol        string    `json:"symbol"`
	Category      Category  `json:"category"`
	Price         float64   `json:"price"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	ChangePercent float64   `json:"changePercent"`
	RealTime      bool      `json:"realTime"`
	Timestamp     time.Time `json:"timestamp"`
}

// TickFromMarketData projects a snapshot onto a Tick.
func TickFromMarketData(m MarketData) Tick {
	ts := m.LastUpdated
	if ts.IsZero() {
		ts = time.Now()
	}
	return Tick{
		Symbol:        m.Symbol,
		Category:      m.Category,
		Price:         m.CurrentPrice,
		High:          m.High24h,
		Low:           m.Low24h,
		ChangePercent: m.ChangePercent24h,
		RealTime:      m.IsRealTime,
		Timestamp:     ts,
	}
}
