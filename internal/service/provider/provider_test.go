package provider_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/provider"
	"MarketPulse/internal/service/simulator"
	xhttp "MarketPulse/pkg/http"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestBinance_Fetch(t *testing.T) {
	t.Parallel()

	// Arrange: a mock transport that checks the outgoing request
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "https://api.binance.com/api/v3/ticker/24hr", req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)
			require.Equal(t, "BTCUSDT", req.URL.Query().Get("symbol"))
			require.Equal(t, "no-cache", req.Header.Get("Cache-Control"))
			return jsonResponse(http.StatusOK, `{"symbol":"BTCUSDT","lastPrice":"65000.5","openPrice":"64000","highPrice":"66000","lowPrice":"63000","priceChange":"1000.5","priceChangePercent":"1.56"}`), nil
		}).
		Times(1)

	client := xhttp.NewClient(xhttp.WithDoer(doer))
	p := provider.NewBinance(client, provider.Endpoint{BaseURL: provider.BinanceBaseURL})

	// Act
	q, err := p.Fetch(testContext(t), models.Request{Symbol: "BTC", Category: models.CategoryCrypto})

	// Assert
	require.NoError(t, err)
	require.Equal(t, models.ProviderBinance, q.Provider)
	require.Equal(t, 65000.5, q.Price)
	require.Equal(t, 66000.0, q.High)
	require.Equal(t, 1.56, q.ChangePercent)
}

func TestBinance_StatusErrorAndUnsupported(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusTooManyRequests, `{"msg":"slow down"}`), nil).Times(1)

	p := provider.NewBinance(xhttp.NewClient(xhttp.WithDoer(doer)), provider.Endpoint{BaseURL: "http://x"})

	_, err := p.Fetch(testContext(t), models.Request{Symbol: "ETH", Category: models.CategoryCrypto})
	var se *xhttp.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusTooManyRequests, se.StatusCode)

	_, err = p.Fetch(testContext(t), models.Request{Symbol: "EURUSD", Category: models.CategoryForex})
	require.ErrorIs(t, err, provider.ErrUnsupported)
}

func TestBinance_MalformedNumber(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `{"lastPrice":"n/a"}`), nil)

	p := provider.NewBinance(xhttp.NewClient(xhttp.WithDoer(doer)), provider.Endpoint{BaseURL: "http://x"})
	_, err := p.Fetch(testContext(t), models.Request{Symbol: "BTC", Category: models.CategoryCrypto})
	require.ErrorIs(t, err, provider.ErrMalformed)
}

func TestCoinGecko_FetchViaProxy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cg/api/v3/coins/markets", r.URL.Path)
		require.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `[{"id":"ethereum","name":"Ethereum","current_price":3200,"high_24h":3300,"low_24h":3100,"price_change_24h":50,"price_change_percentage_24h":1.6}]`)
	}))
	defer srv.Close()

	p := provider.NewCoinGecko(xhttp.NewClient(), provider.Endpoint{
		BaseURL:  "http://unreachable.invalid",
		ProxyURL: srv.URL + "/cg",
		UseProxy: true,
	})

	q, err := p.Fetch(testContext(t), models.Request{Symbol: "ETHUSDT", Category: models.CategoryCrypto})
	require.NoError(t, err)
	require.Equal(t, "Ethereum", q.Name)
	require.Equal(t, 3200.0, q.Price)
	require.Equal(t, 3150.0, q.Open)
}

func TestCoinGecko_EmptyResultIsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	p := provider.NewCoinGecko(xhttp.NewClient(), provider.Endpoint{BaseURL: srv.URL})
	_, err := p.Fetch(testContext(t), models.Request{Symbol: "NOPE", Category: models.CategoryCrypto})
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestFinnhub_Fetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "OANDA:EUR_USD", r.URL.Query().Get("symbol"))
		require.Equal(t, "k", r.URL.Query().Get("token"))
		_, _ = io.WriteString(w, `{"c":1.0842,"d":0.001,"dp":0.09,"h":1.09,"l":1.08,"o":1.0832,"pc":1.0832,"t":1714550400}`)
	}))
	defer srv.Close()

	p := provider.NewFinnhub(xhttp.NewClient(), provider.Endpoint{BaseURL: srv.URL, APIKey: "k"})
	q, err := p.Fetch(testContext(t), models.Request{Symbol: "EURUSD", Category: models.CategoryForex})
	require.NoError(t, err)
	require.Equal(t, 1.0842, q.Price)
	require.Equal(t, int64(1714550400), q.ReceivedAt.Unix())

	_, err = provider.NewFinnhub(xhttp.NewClient(), provider.Endpoint{BaseURL: srv.URL}).
		Fetch(testContext(t), models.Request{Symbol: "AAPL", Category: models.CategoryStocks})
	require.ErrorIs(t, err, provider.ErrNotConfigured)
}

func TestTwelveData_ErrorEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "XAU/USD", r.URL.Query().Get("symbol"))
		_, _ = io.WriteString(w, `{"code":429,"message":"run out of API credits","status":"error"}`)
	}))
	defer srv.Close()

	p := provider.NewTwelveData(xhttp.NewClient(), provider.Endpoint{BaseURL: srv.URL, APIKey: "k"})
	_, err := p.Fetch(testContext(t), models.Request{Symbol: "XAUUSD", Category: models.CategoryCommodities})

	var se *xhttp.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestMock_NeverFails(t *testing.T) {
	t.Parallel()

	m := provider.NewMock(simulator.New(simulator.WithSeed(2)))
	q, err := m.Fetch(testContext(t), models.Request{Symbol: "R_75", Category: models.CategorySynthetic})
	require.NoError(t, err)
	require.True(t, q.Synthetic)
	require.NotNil(t, q.Snapshot)
	require.Len(t, q.History, 24)
	require.Equal(t, q.Snapshot.CurrentPrice, q.Price)
}

func TestSymbolMapping(t *testing.T) {
	t.Parallel()

	require.Equal(t, "BTCUSDT", provider.BinanceSymbol("btc"))
	require.Equal(t, "BTCUSDT", provider.BinanceSymbol("BTC/USDT"))
	require.Equal(t, "ETHUSDT", provider.BinanceSymbol("ETHUSD"))
	require.Equal(t, "bitcoin", provider.CoinGeckoID("BTCUSDT"))
	require.Equal(t, "pepe", provider.CoinGeckoID("PEPE"))
	require.Equal(t, "^GSPC", provider.FinnhubSymbol("SPX", models.CategoryIndices))
	require.Equal(t, "AAPL", provider.FinnhubSymbol("aapl", models.CategoryStocks))
	require.Equal(t, "EUR/USD", provider.TwelveDataSymbol("EUR_USD", models.CategoryForex))
}
