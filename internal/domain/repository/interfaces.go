package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

// Provider answers one-off price queries for the categories it serves.
type Provider interface {
	ID() models.ProviderID
	Fetch(ctx context.Context, req models.Request) (*models.Quote, error)
}

// Publisher pushes ticks to a message broker.
type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

// Storage archives ticks.
type Storage interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordProviderRequest(provider, result string)
	RecordRetry(provider string)
	RecordFailover(from, to string)
	RecordCacheLookup(result string)
	RecordStreamMessage(provider string)
	RecordReconnect(key string)
	SetActiveStreams(n int)
	RecordTickSent(backend, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
