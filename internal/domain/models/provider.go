package models

import (
	"strings"
	"time"
)

// ProviderID identifies an upstream price provider.
type ProviderID string

const (
	ProviderBinance    ProviderID = "BINANCE"
	ProviderCoinGecko  ProviderID = "COINGECKO"
	ProviderFinnhub    ProviderID = "FINNHUB"
	ProviderTwelveData ProviderID = "TWELVEDATA"
	// ProviderMock is the synthetic provider every chain terminates in.
	ProviderMock ProviderID = "MOCK"
)

// ParseProviderID normalizes a configured provider name.
func ParseProviderID(s string) ProviderID {
	return ProviderID(strings.ToUpper(strings.TrimSpace(s)))
}

// Request is one logical market-data query handled by the request client.
type Request struct {
	Symbol   string
	Category Category
	// Instrument overrides the symbol used to look up a per-instrument provider chain.
	Instrument string
	// SkipRetry makes the call best-effort: retryable failures fail over immediately.
	SkipRetry bool
}

// Quote is the provider-neutral payload extracted from a provider response.
type Quote struct {
	Provider      ProviderID
	Symbol        string
	Name          string
	Price         float64
	Open          float64
	High          float64
	Low           float64
	Change        float64
	ChangePercent float64
	History       []PricePoint
	ReceivedAt    time.Time
	// Synthetic is set when the quote was produced by the simulator instead of a provider.
	Synthetic bool
	// Snapshot carries the full simulated value when Synthetic is set.
	Snapshot *MarketData
}
