// Package identity provides a synchronized holder for a connection's identity.
package identity

import "sync"

// Identity holds the identifier of a single connection. Callbacks for one
// connection may run on different goroutines, so every access goes through
// the embedded lock. The zero value is ready to use and holds "".
type Identity struct {
	id string
	sync.RWMutex
}

// New returns an Identity holding the empty string.
func New() *Identity {
	return &Identity{}
}

// Get returns the current identifier, or "" before Set has been called.
//
// Returns:
//   - The most recently stored identifier
func (i *Identity) Get() string {
	i.RLock()
	defer i.RUnlock()
	return i.id
}

// Set replaces the stored identifier.
//
// Parameters:
//   - id: The identifier assigned by the runtime
func (i *Identity) Set(id string) {
	i.Lock()
	defer i.Unlock()
	i.id = id
}

// IsSet reports whether a non-empty identifier has been stored.
func (i *Identity) IsSet() bool {
	return i.Get() != ""
}
