package registry

import (
	"context"

	"github.com/cyberinferno/wsconformance/eventlog"
)

// MemoryRegistry is an in-process Registry backed by two event logs.
// Its methods never return errors.
type MemoryRegistry struct {
	connects    *eventlog.Log[string]
	disconnects *eventlog.Log[string]
}

// NewMemoryRegistry creates an empty in-memory registry.
//
// Returns:
//   - A new *MemoryRegistry with empty connect and disconnect logs
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		connects:    eventlog.NewLog[string](),
		disconnects: eventlog.NewLog[string](),
	}
}

// RecordConnect implements Registry.
func (r *MemoryRegistry) RecordConnect(_ context.Context, id string) error {
	r.connects.Append(id)
	return nil
}

// RecordDisconnect implements Registry.
func (r *MemoryRegistry) RecordDisconnect(_ context.Context, id string) error {
	r.disconnects.Append(id)
	return nil
}

// Connects implements Registry.
func (r *MemoryRegistry) Connects(_ context.Context) ([]string, error) {
	return r.connects.Snapshot(), nil
}

// Disconnects implements Registry.
func (r *MemoryRegistry) Disconnects(_ context.Context) ([]string, error) {
	return r.disconnects.Snapshot(), nil
}
