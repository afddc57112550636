package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// Binance serves crypto pairs from the 24h ticker endpoint.
type Binance struct {
	client *xhttp.Client
	ep     Endpoint
}

func NewBinance(client *xhttp.Client, ep Endpoint) *Binance {
	return &Binance{client: client, ep: ep}
}

func (b *Binance) ID() models.ProviderID { return models.ProviderBinance }

func (b *Binance) Fetch(ctx context.Context, req models.Request) (*models.Quote, error) {
	if req.Category != models.CategoryCrypto {
		return nil, ErrUnsupported
	}

	var t binanceTicker
	err := b.client.GetJSON(ctx, &xhttp.RequestOptions{
		URL:         b.ep.root() + "/api/v3/ticker/24hr",
		QueryParams: map[string][]string{"symbol": {BinanceSymbol(req.Symbol)}},
	}, &t)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: %w", err)
	}

	q := &models.Quote{Provider: models.ProviderBinance, Symbol: req.Symbol, Name: req.Symbol, ReceivedAt: time.Now()}
	for _, f := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"lastPrice", t.LastPrice, &q.Price},
		{"openPrice", t.OpenPrice, &q.Open},
		{"highPrice", t.HighPrice, &q.High},
		{"lowPrice", t.LowPrice, &q.Low},
		{"priceChange", t.PriceChange, &q.Change},
		{"priceChangePercent", t.PriceChangePercent, &q.ChangePercent},
	} {
		v, err := parseFloat(f.name, f.raw)
		if err != nil {
			return nil, fmt.Errorf("binance ticker: %w", err)
		}
		*f.dst = v
	}
	if q.Price <= 0 {
		return nil, fmt.Errorf("binance ticker: %w: lastPrice %v", ErrMalformed, q.Price)
	}
	return q, nil
}

// BinanceSymbol maps BTC, BTC/USDT or btc-usdt to BTCUSDT.
func BinanceSymbol(symbol string) string {
	s := compact(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s
		}
	}
	if trimmed, ok := strings.CutSuffix(s, "USD"); ok && trimmed != "" {
		s = trimmed
	}
	return s + "USDT"
}
