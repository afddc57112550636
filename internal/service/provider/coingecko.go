package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

var coinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"LTC":  "litecoin",
	"AVAX": "avalanche-2",
}

type coinGeckoMarket struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	CurrentPrice             float64 `json:"current_price"`
	High24h                  float64 `json:"high_24h"`
	Low24h                   float64 `json:"low_24h"`
	PriceChange24h           float64 `json:"price_change_24h"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

// CoinGecko serves crypto from the coins/markets endpoint.
type CoinGecko struct {
	client *xhttp.Client
	ep     Endpoint
}

func NewCoinGecko(client *xhttp.Client, ep Endpoint) *CoinGecko {
	return &CoinGecko{client: client, ep: ep}
}

func (c *CoinGecko) ID() models.ProviderID { return models.ProviderCoinGecko }

func (c *CoinGecko) Fetch(ctx context.Context, req models.Request) (*models.Quote, error) {
	if req.Category != models.CategoryCrypto {
		return nil, ErrUnsupported
	}

	opts := &xhttp.RequestOptions{
		URL: c.ep.root() + "/api/v3/coins/markets",
		QueryParams: map[string][]string{
			"vs_currency": {"usd"},
			"ids":         {CoinGeckoID(req.Symbol)},
		},
	}
	if c.ep.APIKey != "" {
		opts.Headers = map[string]string{"x-cg-demo-api-key": c.ep.APIKey}
	}

	var markets []coinGeckoMarket
	if err := c.client.GetJSON(ctx, opts, &markets); err != nil {
		return nil, fmt.Errorf("coingecko markets: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("coingecko markets %s: %w", req.Symbol, ErrNotFound)
	}

	m := markets[0]
	if m.CurrentPrice <= 0 {
		return nil, fmt.Errorf("coingecko markets: %w: current_price %v", ErrMalformed, m.CurrentPrice)
	}
	return &models.Quote{
		Provider:      models.ProviderCoinGecko,
		Symbol:        req.Symbol,
		Name:          m.Name,
		Price:         m.CurrentPrice,
		Open:          m.CurrentPrice - m.PriceChange24h,
		High:          m.High24h,
		Low:           m.Low24h,
		Change:        m.PriceChange24h,
		ChangePercent: m.PriceChangePercentage24h,
		ReceivedAt:    time.Now(),
	}, nil
}

// CoinGeckoID maps a ticker such as BTC or BTCUSDT to a CoinGecko coin id.
func CoinGeckoID(symbol string) string {
	s := compact(symbol)
	for _, quote := range []string{"USDT", "USD"} {
		if trimmed, ok := strings.CutSuffix(s, quote); ok && trimmed != "" {
			s = trimmed
			break
		}
	}
	if id, ok := coinGeckoIDs[s]; ok {
		return id
	}
	return strings.ToLower(s)
}
