package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

// twelveDataQuote also carries the error envelope, which the API sends with HTTP 200.
type twelveDataQuote struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Close         string `json:"close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`

	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TwelveData serves forex, indices, commodities and stocks from the quote endpoint.
type TwelveData struct {
	client *xhttp.Client
	ep     Endpoint
}

func NewTwelveData(client *xhttp.Client, ep Endpoint) *TwelveData {
	return &TwelveData{client: client, ep: ep}
}

func (t *TwelveData) ID() models.ProviderID { return models.ProviderTwelveData }

func (t *TwelveData) Fetch(ctx context.Context, req models.Request) (*models.Quote, error) {
	switch req.Category {
	case models.CategoryForex, models.CategoryIndices, models.CategoryCommodities, models.CategoryStocks:
	default:
		return nil, ErrUnsupported
	}
	if t.ep.APIKey == "" {
		return nil, fmt.Errorf("twelvedata: %w: api key", ErrNotConfigured)
	}

	var q twelveDataQuote
	err := t.client.GetJSON(ctx, &xhttp.RequestOptions{
		URL: t.ep.root() + "/quote",
		QueryParams: map[string][]string{
			"symbol": {TwelveDataSymbol(req.Symbol, req.Category)},
			"apikey": {t.ep.APIKey},
		},
	}, &q)
	if err != nil {
		return nil, fmt.Errorf("twelvedata quote: %w", err)
	}
	if q.Status == "error" {
		code := q.Code
		if code == 0 {
			code = http.StatusBadRequest
		}
		return nil, fmt.Errorf("twelvedata quote: %w", &xhttp.StatusError{StatusCode: code, Body: q.Message})
	}

	out := &models.Quote{Provider: models.ProviderTwelveData, Symbol: req.Symbol, Name: q.Name, ReceivedAt: time.Now()}
	if out.Name == "" {
		out.Name = req.Symbol
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"close", q.Close, &out.Price},
		{"open", q.Open, &out.Open},
		{"high", q.High, &out.High},
		{"low", q.Low, &out.Low},
		{"change", q.Change, &out.Change},
		{"percent_change", q.PercentChange, &out.ChangePercent},
	} {
		v, err := parseFloat(f.name, f.raw)
		if err != nil {
			return nil, fmt.Errorf("twelvedata quote: %w", err)
		}
		*f.dst = v
	}
	if out.Price <= 0 {
		return nil, fmt.Errorf("twelvedata quote: %w: close %v", ErrMalformed, out.Price)
	}
	return out, nil
}

// TwelveDataSymbol maps EURUSD and XAUUSD to the slash form the API expects.
func TwelveDataSymbol(symbol string, category models.Category) string {
	if category == models.CategoryForex || category == models.CategoryCommodities {
		if base, quote, ok := forexPair(symbol); ok {
			return base + "/" + quote
		}
	}
	return compact(symbol)
}
