package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshlane/realtime-go/internal/model"
)

func TestCacheHitWithinTTL(t *testing.T) {
	cache := NewDirectoryCache(30 * time.Second)
	conv := &model.Conversation{ID: 42}

	cache.Set(7, conv)

	got, ok := cache.Get(7)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.ID)
}

func TestCacheNeverServedPastExpiry(t *testing.T) {
	cache := NewDirectoryCache(30 * time.Second)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set(7, &model.Conversation{ID: 42})

	now = now.Add(30 * time.Second)
	_, ok := cache.Get(7)
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewDirectoryCache(30 * time.Second)
	cache.Set(7, &model.Conversation{ID: 42})
	cache.Invalidate(7)

	_, ok := cache.Get(7)
	assert.False(t, ok)
}

func TestCacheMissUnknownKey(t *testing.T) {
	cache := NewDirectoryCache(30 * time.Second)
	_, ok := cache.Get(99)
	assert.False(t, ok)
}
