package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type payload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func TestMemoryCache_SetGetExpire(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := NewMemoryCache(WithMemoryClock(clk.Now), WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", payload{Name: "btc", Price: 42}, time.Minute))

	var got payload
	require.NoError(t, mc.Get(ctx, "k", &got))
	require.Equal(t, payload{Name: "btc", Price: 42}, got)

	clk.Advance(2 * time.Minute)
	require.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(clk.Now), WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	clk.Advance(time.Second)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	clk.Advance(time.Second)

	require.NoError(t, mc.Set(ctx, "c", 3, 0))
	require.Equal(t, 2, mc.Len())
	require.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.Equal(t, 1, v)
}

func TestMemoryCache_Sets(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.SAdd(ctx, "idx", "x", "y", "x"))
	members, err := mc.SMembers(ctx, "idx")
	require.NoError(t, err)
	sort.Strings(members)
	require.Equal(t, []string{"x", "y"}, members)

	require.NoError(t, mc.SRem(ctx, "idx", "x", "y"))
	members, err = mc.SMembers(ctx, "idx")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestLayeredCache_ReadsThroughToDurable(t *testing.T) {
	durable := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(durable, WithLayeredMemorySize(10))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, durable.Set(ctx, "k", payload{Name: "eth"}, 0))

	var got payload
	require.NoError(t, lc.Get(ctx, "k", &got))
	require.Equal(t, "eth", got.Name)

	require.NoError(t, lc.Delete(ctx, "k"))
	require.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)

	require.NoError(t, lc.SAdd(ctx, "idx", "k"))
	members, err := durable.SMembers(ctx, "idx")
	require.NoError(t, err)
	require.Equal(t, []string{"k"}, members)
}
