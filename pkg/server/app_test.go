package server

import (
	"context"
	"testing"

	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"

	"github.com/stretchr/testify/require"
)

func newTestApp(backend string) *App {
	cfg := config.Default()
	cfg.Recorder.Backend = backend
	log := applogger.NewNop()
	srv := xhttp.NewServer(log, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics("", nil))
	rec := usecase.NewTickRecorder(nil, nil, nil, nil, log, usecase.TickRecorderConfig{Backend: backend})
	store := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	return New(cfg, log, srv, rec, nil, nil, store, nil)
}

func TestApp_StartAndShutdown(t *testing.T) {
	// Arrange
	app := newTestApp(usecase.BackendNone)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Act
	require.NoError(t, app.Start(ctx))
	err := app.Shutdown(context.Background())

	// Assert
	require.NoError(t, err)
}

func TestApp_StartFailsWithoutRecorderStorage(t *testing.T) {
	// Arrange
	app := newTestApp(usecase.BackendClickHouse)

	// Act
	err := app.Start(context.Background())

	// Assert
	require.ErrorContains(t, err, "start recorder")
	require.NoError(t, app.Shutdown(context.Background()))
}
