package clickhouse

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithAddr("ch.local", 9440),
		WithDatabase("marketpulse"),
		WithCredentials("writer", "p@ss"),
		WithAsyncInsert(true, true),
		WithMaxExecutionTime(30 * time.Second),
	} {
		opt(&cfg)
	}

	u, err := url.Parse(buildDSN(cfg))
	require.NoError(t, err)
	require.Equal(t, "clickhouse", u.Scheme)
	require.Equal(t, "ch.local:9440", u.Host)
	require.Equal(t, "/marketpulse", u.Path)
	pw, _ := u.User.Password()
	require.Equal(t, "p@ss", pw)

	q := u.Query()
	require.Equal(t, "5s", q.Get("dial_timeout"))
	require.Equal(t, "30", q.Get("max_execution_time"))
	require.Equal(t, "1", q.Get("async_insert"))
	require.Equal(t, "1", q.Get("wait_for_async_insert"))
	require.False(t, q.Has("write_timeout"))
}

func TestBuildDSN_HTTP(t *testing.T) {
	cfg := defaultConfig()
	WithAddr("localhost", 8123)(&cfg)
	WithHTTP(true)(&cfg)
	require.True(t, strings.HasPrefix(buildDSN(cfg), "http://"))
}

func TestTickSchema(t *testing.T) {
	stmts := TickSchema("marketpulse", "market_ticks")
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[1], "marketpulse.market_ticks")
	require.Contains(t, stmts[1], "ORDER BY (symbol, ts)")
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient()
	require.ErrorContains(t, err, "host is required")
}
