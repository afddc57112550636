package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishBatchEncodesJSON(t *testing.T) {
	w := &captureWriter{}
	reg := prometheus.NewRegistry()
	p, err := NewProducer(WithWriter(w), WithRegisterer(reg))
	require.NoError(t, err)

	err = p.PublishBatch(context.Background(), "market.ticks", []Message{
		{Key: []byte("BTC"), Value: map[string]any{"symbol": "BTC", "price": 65000.5}},
		{Key: []byte("ETH"), Value: "raw"},
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 2)
	require.Equal(t, "market.ticks", w.msgs[0].Topic)
	require.Equal(t, []byte("BTC"), w.msgs[0].Key)
	require.JSONEq(t, `{"symbol":"BTC","price":65000.5}`, string(w.msgs[0].Value))
	require.Equal(t, "raw", string(w.msgs[1].Value))

	require.Equal(t, 2.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("market.ticks", "snappy", "ok")))

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestProducer_WriteErrorIsCounted(t *testing.T) {
	w := &captureWriter{err: errors.New("leader not available")}
	p, err := NewProducer(WithWriter(w), WithRegisterer(prometheus.NewRegistry()), WithCompression("lz4"))
	require.NoError(t, err)

	err = p.Publish(context.Background(), "market.ticks", []byte("BTC"), map[string]any{"p": 1})
	require.ErrorContains(t, err, "leader not available")
	require.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errs.WithLabelValues("market.ticks")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("market.ticks", "lz4", "error")))
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	require.Equal(t, kafka.Gzip, parseCompression("gzip"))
	require.Equal(t, kafka.Zstd, parseCompression("zstd"))
	require.Equal(t, kafka.Snappy, parseCompression(""))
}
