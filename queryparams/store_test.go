package queryparams

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetOrExtract(t *testing.T) {
	s := NewMemoryStore(cache.NoExpiration, time.Minute)
	ctx := context.Background()

	t.Run("extracts on first use", func(t *testing.T) {
		p, err := s.GetOrExtract(ctx, "conn-1", "/ws?a=1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "1"}, p.Map())
		assert.Equal(t, 1, s.Len())
	})

	t.Run("later calls keep the first params", func(t *testing.T) {
		p, err := s.GetOrExtract(ctx, "conn-1", "/ws?a=2")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "1"}, p.Map())
	})

	t.Run("connections are isolated", func(t *testing.T) {
		p, err := s.GetOrExtract(ctx, "conn-2", "/ws?b=2")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"b": "2"}, p.Map())
		assert.Equal(t, 2, s.Len())
	})
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore(cache.NoExpiration, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetOrExtract(ctx, "conn-1", "/ws?a=1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_LookupForget(t *testing.T) {
	s := NewMemoryStore(cache.NoExpiration, time.Minute)
	ctx := context.Background()

	_, ok := s.Lookup(ctx, "conn-1")
	assert.False(t, ok)

	_, err := s.GetOrExtract(ctx, "conn-1", "/ws?a=1")
	require.NoError(t, err)

	p, ok := s.Lookup(ctx, "conn-1")
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, p.Keys())

	s.Forget(ctx, "conn-1")
	_, ok = s.Lookup(ctx, "conn-1")
	assert.False(t, ok)

	s.Forget(ctx, "unknown")
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Expiration(t *testing.T) {
	s := NewMemoryStore(50*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	_, err := s.GetOrExtract(ctx, "conn-1", "/ws?a=1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := s.Lookup(ctx, "conn-1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(cache.NoExpiration, time.Minute)
	ctx := context.Background()

	const connections = 50
	const readers = 20

	var wg sync.WaitGroup
	wg.Add(connections * readers)
	for c := 0; c < connections; c++ {
		for iter := 0; iter < readers; iter++ {
			go func(c int) {
				defer wg.Done()
				id := fmt.Sprintf("conn-%d", c)
				p, err := s.GetOrExtract(ctx, id, fmt.Sprintf("/ws?id=%d", c))
				assert.NoError(t, err)
				v, _ := p.Get("id")
				assert.Equal(t, fmt.Sprintf("%d", c), v)
			}(c)
		}
	}
	wg.Wait()

	assert.Equal(t, connections, s.Len())
}
