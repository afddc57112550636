package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/stream"
	"MarketPulse/internal/usecase"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// pushSource hands every subscriber callback to the test.
type pushSource struct {
	mu     sync.Mutex
	cbs    map[string]stream.Callback
	unsubs int
}

func (p *pushSource) Subscribe(_ context.Context, symbol, category string, cb stream.Callback) (models.MarketData, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cbs == nil {
		p.cbs = make(map[string]stream.Callback)
	}
	p.cbs[symbol] = cb
	return models.MarketData{Symbol: symbol}, func() {
		p.mu.Lock()
		p.unsubs++
		p.mu.Unlock()
	}
}

func (p *pushSource) push(symbol string, price float64) {
	p.mu.Lock()
	cb := p.cbs[symbol]
	p.mu.Unlock()
	cb(models.MarketData{
		Symbol:       symbol,
		Category:     models.CategoryCrypto,
		CurrentPrice: price,
		LastUpdated:  time.Unix(1714560000, 0),
		IsRealTime:   true,
	})
}

func TestTickRecorder_KafkaBatches(t *testing.T) {
	// Arrange
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)
	src := &pushSource{}

	var mu sync.Mutex
	var written []*models.Tick
	pub.EXPECT().PublishBatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ticks []*models.Tick) error {
			mu.Lock()
			written = append(written, ticks...)
			mu.Unlock()
			return nil
		}).MinTimes(1)
	pub.EXPECT().Close().Return(nil)

	rec := usecase.NewTickRecorder(src, pub, nil, nil, nil, usecase.TickRecorderConfig{
		Backend:       usecase.BackendKafka,
		Watchlist:     []usecase.WatchItem{{Symbol: "BTC", Category: "crypto"}, {Symbol: "ETH", Category: "crypto"}},
		BatchSize:     2,
		FlushInterval: 10 * time.Millisecond,
	})

	// Act
	require.NoError(t, rec.Start(context.Background()))
	src.push("BTC", 65000)
	src.push("ETH", 3200)
	src.push("BTC", 65010)

	// Assert
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(written) == 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, rec.Shutdown(context.Background()))
	require.Equal(t, 2, src.unsubs)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "BTC", written[0].Symbol)
	require.Equal(t, 65000.0, written[0].Price)
	require.True(t, written[0].RealTime)
	require.Equal(t, time.Unix(1714560000, 0), written[0].Timestamp)
}

func TestTickRecorder_ClickHouseInitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStorage(ctrl)
	store.EXPECT().Init(gomock.Any()).Return(errors.New("no table"))

	rec := usecase.NewTickRecorder(&pushSource{}, nil, store, nil, nil, usecase.TickRecorderConfig{
		Backend:   usecase.BackendClickHouse,
		Watchlist: []usecase.WatchItem{{Symbol: "BTC", Category: "crypto"}},
	})
	require.ErrorContains(t, rec.Start(context.Background()), "no table")
}

func TestTickRecorder_ProcessRoutesByBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStorage(ctrl)
	tick := &models.Tick{Symbol: "EURUSD", Price: 1.08}
	store.EXPECT().Store(gomock.Any(), tick).Return(nil)
	store.EXPECT().StoreBatch(gomock.Any(), gomock.Len(1)).Return(errors.New("timeout"))

	rec := usecase.NewTickRecorder(&pushSource{}, nil, store, nil, nil, usecase.TickRecorderConfig{Backend: usecase.BackendClickHouse})

	require.NoError(t, rec.Process(context.Background(), tick))
	require.ErrorContains(t, rec.ProcessBatch(context.Background(), []*models.Tick{tick}), "timeout")
	require.Error(t, rec.Process(context.Background(), nil))
}

func TestTickRecorder_NoneIsInert(t *testing.T) {
	src := &pushSource{}
	rec := usecase.NewTickRecorder(src, nil, nil, nil, nil, usecase.TickRecorderConfig{
		Watchlist: []usecase.WatchItem{{Symbol: "BTC", Category: "crypto"}},
	})
	require.False(t, rec.Enabled())
	require.NoError(t, rec.Start(context.Background()))
	require.Empty(t, src.cbs)
	require.NoError(t, rec.Shutdown(context.Background()))
}
