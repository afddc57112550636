package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	pkgkafka "MarketPulse/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	execs []execCall
	err   error
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	return nil, f.err
}

func (f *fakeDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) PingContext(context.Context) error { return f.err }

func TestClickHouseTickStorage_StoreBatch(t *testing.T) {
	db := &fakeDB{}
	s := NewClickHouseTickStorage(db, "market_ticks", []string{"CREATE DATABASE x", "CREATE TABLE y"})
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Init(context.Background()))
	require.Len(t, db.execs, 2)

	err := s.StoreBatch(context.Background(), []*models.Tick{
		{Symbol: "BTC", Category: models.CategoryCrypto, Price: 65000, High: 66000, Low: 64000, RealTime: true, Timestamp: ts},
		nil,
		{Symbol: "", Timestamp: ts},
		{Symbol: "ETH", Category: models.CategoryCrypto, Price: 3200, Timestamp: ts},
	})
	require.NoError(t, err)

	insert := db.execs[2]
	require.Equal(t,
		"INSERT INTO market_ticks (ts, symbol, category, price, high, low, change_percent, realtime) VALUES (?, ?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?, ?)",
		insert.query)
	require.Len(t, insert.args, 16)
	require.Equal(t, "BTC", insert.args[1])
	require.Equal(t, "crypto", insert.args[2])
	require.Equal(t, uint8(1), insert.args[7])
	require.Equal(t, uint8(0), insert.args[15])
}

func TestClickHouseTickStorage_Errors(t *testing.T) {
	db := &fakeDB{err: errors.New("readonly")}
	s := NewClickHouseTickStorage(db, "market_ticks", []string{"CREATE TABLE y"})

	require.ErrorContains(t, s.Init(context.Background()), "readonly")
	require.ErrorContains(t, s.Store(context.Background(), &models.Tick{Symbol: "BTC", Timestamp: time.Now()}), "readonly")
	require.Error(t, s.Health(context.Background()))
	// nothing valid to write means no statement
	before := len(db.execs)
	require.NoError(t, s.StoreBatch(context.Background(), []*models.Tick{nil}))
	require.Len(t, db.execs, before)
}

type captureWriter struct{ msgs []kafka.Message }

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaTickPublisher(t *testing.T) {
	w := &captureWriter{}
	producer, err := pkgkafka.NewProducer(pkgkafka.WithWriter(w), pkgkafka.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	pub := NewKafkaTickPublisher(producer, "market.ticks")

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Publish(context.Background(), &models.Tick{Symbol: "BTC", Price: 1, Timestamp: ts}))
	require.NoError(t, pub.PublishBatch(context.Background(), []*models.Tick{
		{Symbol: "ETH", Price: 2, Timestamp: ts},
		nil,
		{Symbol: "SOL", Price: 3, Timestamp: ts},
	}))
	require.NoError(t, pub.Close())

	require.Len(t, w.msgs, 3)
	require.Equal(t, "SOL", string(w.msgs[2].Key))

	var got models.Tick
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &got))
	require.Equal(t, "ETH", got.Symbol)
	require.Equal(t, 2.0, got.Price)
	require.True(t, got.Timestamp.Equal(ts))
}
