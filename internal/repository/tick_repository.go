package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// DB is the subset of *sql.DB the tick storage uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
}

const tickColumns = "ts, symbol, category, price, high, low, change_percent, realtime"

// ClickHouseTickStorage archives ticks in a MergeTree table.
type ClickHouseTickStorage struct {
	db     DB
	table  string
	schema []string
}

// NewClickHouseTickStorage creates ClickHouse storage. schema is run by Init.
func NewClickHouseTickStorage(db DB, table string, schema []string) repository.Storage {
	return &ClickHouseTickStorage{db: db, table: table, schema: schema}
}

func (s *ClickHouseTickStorage) Init(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init tick schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseTickStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}

// StoreBatch inserts ticks as multi-row VALUES, chunked to bound statement size.
func (s *ClickHouseTickStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := min(start+chunkSize, len(ticks))

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*8)
		for _, t := range ticks[start:end] {
			if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.Timestamp.UTC(),
				t.Symbol,
				string(t.Category),
				t.Price,
				t.High,
				t.Low,
				t.ChangePercent,
				boolToUInt8(t.RealTime),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, tickColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseTickStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", tickColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.Tick
	for rows.Next() {
		var t models.Tick
		var category string
		var realtime uint8
		if err := rows.Scan(&t.Timestamp, &t.Symbol, &category, &t.Price, &t.High, &t.Low, &t.ChangePercent, &realtime); err != nil {
			return nil, err
		}
		t.Category = models.Category(category)
		t.RealTime = realtime == 1
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseTickStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseTickStorage) Close() error {
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// TickPublisher is the part of pkg/kafka.Producer the publisher uses.
type TickPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaTickPublisher implements Publisher for Kafka, keyed by symbol.
type KafkaTickPublisher struct {
	producer TickPublisher
	topic    string
}

// NewKafkaTickPublisher creates Kafka publisher.
func NewKafkaTickPublisher(producer TickPublisher, topic string) repository.Publisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), t)
}

func (p *KafkaTickPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(ticks))
	for _, t := range ticks {
		if t == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(t.Symbol), Value: t})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaTickPublisher) Close() error {
	return p.producer.Close()
}
