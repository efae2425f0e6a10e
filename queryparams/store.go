package queryparams

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Store publishes each connection's Params to later callbacks on that
// connection. Implementations must be safe for concurrent use.
type Store interface {
	// GetOrExtract returns the Params stored for connID, extracting them from
	// rawURL on first use. Concurrent first calls for the same connID extract
	// exactly once and all observe the same Params.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - connID: The connection the parameters belong to
	//   - rawURL: The connection's originating URL
	//
	// Returns:
	//   - The stored or freshly extracted Params
	//   - An error if ctx is done
	GetOrExtract(ctx context.Context, connID string, rawURL string) (Params, error)

	// Lookup returns the Params stored for connID, if any.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - connID: The connection to look up
	//
	// Returns:
	//   - The Params and true if present
	//   - Empty Params and false otherwise
	Lookup(ctx context.Context, connID string) (Params, bool)

	// Forget removes the Params stored for connID. It is a no-op for unknown IDs.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - connID: The connection whose parameters are no longer needed
	Forget(ctx context.Context, connID string)

	// Len returns the number of connections with stored Params.
	Len() int
}

// MemoryStore is an in-memory Store. It uses go-cache for storage, so that
// entries of connections that never report a disconnect eventually expire,
// and singleflight so that concurrent first readers parse the URL once.
type MemoryStore struct {
	cache *cache.Cache
	group singleflight.Group
	ttl   time.Duration
}

// NewMemoryStore creates an in-memory Store.
//
// Parameters:
//   - ttl: How long an entry lives without being forgotten; cache.NoExpiration keeps entries until Forget
//   - cleanupInterval: Interval at which expired entries are purged
//
// Returns:
//   - A new *MemoryStore
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// GetOrExtract implements Store.
func (s *MemoryStore) GetOrExtract(ctx context.Context, connID string, rawURL string) (Params, error) {
	select {
	case <-ctx.Done():
		return Params{}, ctx.Err()
	default:
	}

	if p, ok := s.Lookup(ctx, connID); ok {
		return p, nil
	}

	val, err, _ := s.group.Do(connID, func() (interface{}, error) {
		if p, ok := s.Lookup(ctx, connID); ok {
			return p, nil
		}

		p := Extract(rawURL)
		s.cache.Set(connID, p, s.ttl)
		return p, nil
	})
	if err != nil {
		return Params{}, err
	}

	p, ok := val.(Params)
	if !ok {
		return Params{}, fmt.Errorf("unexpected type in param store for connection %s", connID)
	}

	return p, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, connID string) (Params, bool) {
	val, found := s.cache.Get(connID)
	if !found {
		return Params{values: map[string]string{}}, false
	}

	p, ok := val.(Params)
	return p, ok
}

// Forget implements Store.
func (s *MemoryStore) Forget(_ context.Context, connID string) {
	s.cache.Delete(connID)
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
