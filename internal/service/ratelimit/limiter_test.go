package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Allow(t *testing.T) {
	// Arrange
	now := time.Unix(1_700_000_000, 0)
	l := New(WithClock(func() time.Time { return now }))
	rule := Rule{Capacity: 2, RefillPerSec: 1}

	// Act + Assert
	require.True(t, l.Allow("a", rule))
	require.True(t, l.Allow("a", rule))
	require.False(t, l.Allow("a", rule))
	require.True(t, l.Allow("b", rule), "keys have separate buckets")

	now = now.Add(time.Second)
	require.True(t, l.Allow("a", rule))
	require.False(t, l.Allow("a", rule))

	require.True(t, l.Allow("a", Rule{}), "zero capacity disables limiting")
}

func TestLimiter_PrunesFullBuckets(t *testing.T) {
	// Arrange
	now := time.Unix(1_700_000_000, 0)
	l := New(WithClock(func() time.Time { return now }), WithMaxKeys(2))
	rule := Rule{Capacity: 1, RefillPerSec: 1}
	require.True(t, l.Allow("a", rule))
	require.True(t, l.Allow("b", rule))

	// Act
	now = now.Add(5 * time.Second)
	require.True(t, l.Allow("c", rule))

	// Assert
	require.Equal(t, 1, l.Len())
}
