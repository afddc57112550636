package stream

import (
	"net/url"
	"strings"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/provider"
)

// Default public WebSocket URLs.
const (
	BinanceWebSocketURL    = "wss://stream.binance.com:9443/ws"
	TwelveDataWebSocketURL = "wss://ws.twelvedata.com/v1/quotes/price"
	FinnhubWebSocketURL    = "wss://ws.finnhub.io"
)

// Endpoint is everything needed to open one provider stream.
type Endpoint struct {
	URL       string
	Subscribe any
	Heartbeat any
}

// Endpoints configures the streaming providers. A provider that needs a key
// and has none resolves to nothing.
type Endpoints struct {
	BinanceURL    string
	TwelveDataURL string
	TwelveDataKey string
	FinnhubURL    string
	FinnhubKey    string
}

// Resolve builds the URL and subscription message for symbol on provider.
// COINGECKO and MOCK have no public stream.
func (e Endpoints) Resolve(id models.ProviderID, symbol string, category models.Category) (Endpoint, bool) {
	switch id {
	case models.ProviderBinance:
		stream := strings.ToLower(provider.BinanceSymbol(symbol)) + "@ticker"
		return Endpoint{
			URL: or(e.BinanceURL, BinanceWebSocketURL),
			Subscribe: map[string]any{
				"method": "SUBSCRIBE",
				"params": []string{stream},
				"id":     1,
			},
		}, true

	case models.ProviderTwelveData:
		if e.TwelveDataKey == "" {
			return Endpoint{}, false
		}
		return Endpoint{
			URL: withQuery(or(e.TwelveDataURL, TwelveDataWebSocketURL), "apikey", e.TwelveDataKey),
			Subscribe: map[string]any{
				"action": "subscribe",
				"params": map[string]string{"symbols": provider.TwelveDataSymbol(symbol, category)},
			},
			Heartbeat: map[string]string{"action": "heartbeat"},
		}, true

	case models.ProviderFinnhub:
		if e.FinnhubKey == "" {
			return Endpoint{}, false
		}
		return Endpoint{
			URL: withQuery(or(e.FinnhubURL, FinnhubWebSocketURL), "token", e.FinnhubKey),
			Subscribe: map[string]string{
				"type":   "subscribe",
				"symbol": provider.FinnhubSymbol(symbol, category),
			},
		}, true
	}
	return Endpoint{}, false
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
