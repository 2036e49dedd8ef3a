package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLExpiresEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTL[string, int](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1, 0)
	c.Set("b", 2, 10*time.Minute)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	require.False(t, ok, "entry should expire after the default TTL")

	v, ok = c.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestTTLCleanupDeleteClear(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTL[string, string](time.Second)
	c.now = func() time.Time { return now }

	c.Set("x", "1", 0)
	c.Set("y", "2", 0)
	c.Set("z", "3", time.Hour)
	now = now.Add(5 * time.Second)

	require.Equal(t, 2, c.Cleanup())
	require.Equal(t, 1, c.Len())

	require.True(t, c.Delete("z"))
	require.False(t, c.Delete("z"))

	c.Set("w", "4", 0)
	c.Clear()
	require.Equal(t, 0, c.Len())
}
