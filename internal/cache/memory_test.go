package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewMemoryCache(time.Minute, 10)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.SetAddress(ctx, "k", "Market St"))
	got, ok, err := c.GetAddress(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Market St", got)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.GetAddress(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewMemoryCache(time.Hour, 2)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.SetAddress(ctx, "a", "A")
	now = now.Add(time.Second)
	c.SetAddress(ctx, "b", "B")
	now = now.Add(time.Second)
	c.SetAddress(ctx, "c", "C")

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.GetAddress(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.GetAddress(ctx, "c")
	assert.True(t, ok)
}

func TestKeyAddress_Rounds(t *testing.T) {
	assert.Equal(t, KeyAddress(37.77900001, -122.41), KeyAddress(37.779, -122.41))
	assert.Equal(t, "address:37.779000:-122.410000", KeyAddress(37.779, -122.41))
}
