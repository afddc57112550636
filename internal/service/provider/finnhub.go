package provider

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

var finnhubIndices = map[string]string{
	"SPX":   "^GSPC",
	"US500": "^GSPC",
	"NDX":   "^NDX",
	"DJI":   "^DJI",
}

// Finnhub serves stocks, forex, indices and commodities from the quote endpoint.
type Finnhub struct {
	client *xhttp.Client
	ep     Endpoint
}

func NewFinnhub(client *xhttp.Client, ep Endpoint) *Finnhub {
	return &Finnhub{client: client, ep: ep}
}

func (f *Finnhub) ID() models.ProviderID { return models.ProviderFinnhub }

func (f *Finnhub) Fetch(ctx context.Context, req models.Request) (*models.Quote, error) {
	switch req.Category {
	case models.CategoryStocks, models.CategoryForex, models.CategoryIndices, models.CategoryCommodities:
	default:
		return nil, ErrUnsupported
	}
	if f.ep.APIKey == "" {
		return nil, fmt.Errorf("finnhub: %w: api key", ErrNotConfigured)
	}

	var q finnhubQuote
	err := f.client.GetJSON(ctx, &xhttp.RequestOptions{
		URL: f.ep.root() + "/api/v1/quote",
		QueryParams: map[string][]string{
			"symbol": {FinnhubSymbol(req.Symbol, req.Category)},
			"token":  {f.ep.APIKey},
		},
	}, &q)
	if err != nil {
		return nil, fmt.Errorf("finnhub quote: %w", err)
	}
	// unknown symbols come back as all zeros
	if q.Current <= 0 {
		return nil, fmt.Errorf("finnhub quote %s: %w", req.Symbol, ErrNotFound)
	}

	received := time.Now()
	if q.Timestamp > 0 {
		received = time.Unix(q.Timestamp, 0)
	}
	return &models.Quote{
		Provider:      models.ProviderFinnhub,
		Symbol:        req.Symbol,
		Name:          req.Symbol,
		Price:         q.Current,
		Open:          q.Open,
		High:          q.High,
		Low:           q.Low,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		ReceivedAt:    received,
	}, nil
}

// FinnhubSymbol maps EURUSD to OANDA:EUR_USD and index aliases to their tickers.
func FinnhubSymbol(symbol string, category models.Category) string {
	switch category {
	case models.CategoryForex, models.CategoryCommodities:
		if base, quote, ok := forexPair(symbol); ok {
			return "OANDA:" + base + "_" + quote
		}
	case models.CategoryIndices:
		if s, ok := finnhubIndices[compact(symbol)]; ok {
			return s
		}
	}
	return compact(symbol)
}
