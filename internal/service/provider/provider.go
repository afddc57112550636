// Package provider implements the REST price providers and the synthetic MOCK provider.
package provider

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
)

//go:generate mockgen -package=provider_test -destination=mock_doer_test.go MarketPulse/pkg/http Doer

var (
	// ErrUnsupported means the provider does not serve the requested category.
	ErrUnsupported = errors.New("provider: category not supported")
	// ErrNotConfigured means the provider needs an API key that is missing.
	ErrNotConfigured = errors.New("provider: not configured")
	// ErrNotFound means the provider answered but knows nothing about the symbol.
	ErrNotFound = errors.New("provider: symbol not found")
	// ErrMalformed means the response could not be interpreted.
	ErrMalformed = errors.New("provider: malformed response")
)

// Endpoint locates one upstream REST API.
type Endpoint struct {
	BaseURL  string
	ProxyURL string
	APIKey   string
	// UseProxy routes requests through ProxyURL when it is set.
	UseProxy bool
}

func (e Endpoint) root() string {
	if e.UseProxy && e.ProxyURL != "" {
		return strings.TrimRight(e.ProxyURL, "/")
	}
	return strings.TrimRight(e.BaseURL, "/")
}

// Endpoints groups the configured REST endpoints.
type Endpoints struct {
	Binance    Endpoint
	CoinGecko  Endpoint
	Finnhub    Endpoint
	TwelveData Endpoint
}

// Default public base URLs.
const (
	BinanceBaseURL    = "https://api.binance.com"
	CoinGeckoBaseURL  = "https://api.coingecko.com"
	FinnhubBaseURL    = "https://finnhub.io"
	TwelveDataBaseURL = "https://api.twelvedata.com"
)

// NewSet builds every REST provider plus MOCK, keyed by id.
func NewSet(client *xhttp.Client, eps Endpoints, mock *Mock) map[models.ProviderID]repository.Provider {
	return map[models.ProviderID]repository.Provider{
		models.ProviderBinance:    NewBinance(client, withDefault(eps.Binance, BinanceBaseURL)),
		models.ProviderCoinGecko:  NewCoinGecko(client, withDefault(eps.CoinGecko, CoinGeckoBaseURL)),
		models.ProviderFinnhub:    NewFinnhub(client, withDefault(eps.Finnhub, FinnhubBaseURL)),
		models.ProviderTwelveData: NewTwelveData(client, withDefault(eps.TwelveData, TwelveDataBaseURL)),
		models.ProviderMock:       mock,
	}
}

func withDefault(e Endpoint, base string) Endpoint {
	if e.BaseURL == "" {
		e.BaseURL = base
	}
	return e
}

// parseFloat accepts the string-encoded numbers several APIs use.
func parseFloat(field, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformed, field, v)
	}
	return f, nil
}

func compact(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
}

// forexPair splits a six-letter pair such as EURUSD.
func forexPair(symbol string) (string, string, bool) {
	s := compact(symbol)
	if len(s) != 6 {
		return "", "", false
	}
	return s[:3], s[3:], true
}
