package requestclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/provider"
	"MarketPulse/internal/service/simulator"
	xhttp "MarketPulse/pkg/http"

	"github.com/stretchr/testify/require"
)

type staticChains []models.ProviderID

func (s staticChains) Chain(models.Category, string) []models.ProviderID {
	return append([]models.ProviderID(nil), s...)
}

// scripted returns the queued results in order, repeating the last one.
type scripted struct {
	id      models.ProviderID
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scripted) ID() models.ProviderID { return s.id }

func (s *scripted) Fetch(_ context.Context, req models.Request) (*models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	if err := s.results[i]; err != nil {
		return nil, err
	}
	return &models.Quote{Provider: s.id, Symbol: req.Symbol, Price: 42}, nil
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sleepRecorder struct{ delays []time.Duration }

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func status(code int) error { return &xhttp.StatusError{StatusCode: code} }

func newClient(chain staticChains, cfg Config, rec *sleepRecorder, ps ...*scripted) *Client {
	providers := make([]repository.Provider, 0, len(ps))
	for _, p := range ps {
		providers = append(providers, p)
	}
	return New(chain, providers, simulator.New(simulator.WithSeed(1)), cfg,
		WithSleeper(rec.Sleep),
		WithJitter(func(d time.Duration) time.Duration { return d }),
	)
}

var cfg = Config{Timeout: time.Second, MaxRetries: 3, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

func TestFetch_FallsBackToSecondProvider(t *testing.T) {
	a := &scripted{id: "A", results: []error{status(http.StatusInternalServerError)}}
	b := &scripted{id: "B", results: []error{nil}}
	rec := &sleepRecorder{}
	c := newClient(staticChains{"A", "B", models.ProviderMock}, cfg, rec, a, b)

	q, err := c.Fetch(context.Background(), models.Request{Symbol: "BTC", Category: models.CategoryCrypto})

	require.NoError(t, err)
	require.Equal(t, models.ProviderID("B"), q.Provider)
	require.False(t, q.Synthetic)
	require.Equal(t, cfg.MaxRetries+1, a.Calls())
	require.Equal(t, 1, b.Calls())
	require.Len(t, rec.delays, cfg.MaxRetries)
}

func TestFetch_TerminalChainSynthesizes(t *testing.T) {
	a := &scripted{id: "A", results: []error{status(http.StatusNotFound)}}
	b := &scripted{id: "B", results: []error{provider.ErrMalformed}}
	rec := &sleepRecorder{}
	c := newClient(staticChains{"A", "B", models.ProviderMock}, cfg, rec, a, b)

	q, err := c.Fetch(context.Background(), models.Request{Symbol: "ETH", Category: models.CategoryCrypto})

	require.NoError(t, err)
	require.True(t, q.Synthetic)
	require.NotNil(t, q.Snapshot)
	require.False(t, q.Snapshot.IsRealTime)
	require.NotEmpty(t, q.Snapshot.PriceHistory)
	require.GreaterOrEqual(t, q.Snapshot.High24h, q.Snapshot.Low24h)
	// terminal errors never retry
	require.Equal(t, 1, a.Calls())
	require.Equal(t, 1, b.Calls())
	require.Empty(t, rec.delays)
}

func TestFetch_BackoffGrowth(t *testing.T) {
	a := &scripted{id: "A", results: []error{status(http.StatusServiceUnavailable)}}
	rec := &sleepRecorder{}
	c := newClient(staticChains{"A"}, Config{
		Timeout:        time.Second,
		MaxRetries:     6,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}, rec, a)

	_, err := c.Fetch(context.Background(), models.Request{Symbol: "X", Category: models.CategoryForex})
	require.NoError(t, err)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	require.Equal(t, want, rec.delays)
}

func TestFetch_SkipRetryFailsOverImmediately(t *testing.T) {
	a := &scripted{id: "A", results: []error{status(http.StatusTooManyRequests)}}
	b := &scripted{id: "B", results: []error{nil}}
	rec := &sleepRecorder{}
	c := newClient(staticChains{"A", "B"}, cfg, rec, a, b)

	q, err := c.Fetch(context.Background(), models.Request{Symbol: "X", Category: models.CategoryCrypto, SkipRetry: true})
	require.NoError(t, err)
	require.Equal(t, models.ProviderID("B"), q.Provider)
	require.Equal(t, 1, a.Calls())
	require.Empty(t, rec.delays)
}

func TestFetch_RecoversAfterTransientFailures(t *testing.T) {
	a := &scripted{id: "A", results: []error{status(http.StatusBadGateway), &net.OpError{Op: "dial", Err: errors.New("refused")}, nil}}
	rec := &sleepRecorder{}
	c := newClient(staticChains{"A", models.ProviderMock}, cfg, rec, a)

	q, err := c.Fetch(context.Background(), models.Request{Symbol: "ETH", Category: models.CategoryCrypto})
	require.NoError(t, err)
	require.False(t, q.Synthetic)
	require.Equal(t, 3, a.Calls())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
}

func TestFetch_CallerCancellation(t *testing.T) {
	a := &scripted{id: "A", results: []error{status(http.StatusInternalServerError)}}
	c := New(staticChains{"A"}, []repository.Provider{a}, simulator.New(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, models.Request{Symbol: "X", Category: models.CategoryCrypto})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetch_NoSimulatorExhausts(t *testing.T) {
	a := &scripted{id: "A", results: []error{status(http.StatusBadRequest)}}
	c := New(staticChains{"A", models.ProviderMock}, []repository.Provider{a}, nil, cfg)

	_, err := c.Fetch(context.Background(), models.Request{Symbol: "X", Category: models.CategoryCrypto})
	require.ErrorIs(t, err, ErrChainExhausted)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{status(http.StatusRequestTimeout), Retryable},
		{status(http.StatusTooManyRequests), Retryable},
		{status(http.StatusInternalServerError), Retryable},
		{status(http.StatusServiceUnavailable), Retryable},
		{status(http.StatusNotFound), Terminal},
		{status(http.StatusUnauthorized), Terminal},
		{context.DeadlineExceeded, Retryable},
		{fmt.Errorf("wrapped: %w", &net.OpError{Op: "read", Err: errors.New("reset")}), Retryable},
		{context.Canceled, Terminal},
		{provider.ErrMalformed, Terminal},
		{provider.ErrUnsupported, Terminal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

func TestAttemptTransitions(t *testing.T) {
	st := newAttempt([]models.ProviderID{"A", "B"}, cfg)
	require.Equal(t, models.ProviderID("A"), st.provider())
	require.Equal(t, models.ProviderID("B"), st.next())

	st2 := st.retry(cfg.MaxBackoff)
	require.Equal(t, 2, st2.retriesLeft)
	require.Equal(t, 200*time.Millisecond, st2.backoff)
	require.Equal(t, 3, st.retriesLeft)

	st3 := st2.failover(cfg)
	require.Equal(t, models.ProviderID("B"), st3.provider())
	require.Equal(t, cfg.MaxRetries, st3.retriesLeft)
	require.Equal(t, cfg.InitialBackoff, st3.backoff)
	require.True(t, st3.failover(cfg).exhausted())
}
