// Package registry records the connect and disconnect history of WebSocket
// connections. Each history is an append-only list of connection IDs in the
// order the runtime invoked the corresponding callbacks.
package registry

import "context"

// Registry accumulates connect and disconnect events. Implementations must be
// safe for concurrent use: appends from different connections never corrupt
// or lose each other, and snapshots are copies that can be read freely.
// No ordering is promised between the connect log and the disconnect log.
type Registry interface {
	// RecordConnect appends id to the connect log.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - id: The connection ID passed to the connected callback
	//
	// Returns:
	//   - An error if the backing store rejected the append
	RecordConnect(ctx context.Context, id string) error

	// RecordDisconnect appends id to the disconnect log.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - id: The connection ID passed to the disconnected callback
	//
	// Returns:
	//   - An error if the backing store rejected the append
	RecordDisconnect(ctx context.Context, id string) error

	// Connects returns a snapshot of the connect log in append order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - A copy of the connect log
	//   - An error if the backing store could not be read
	Connects(ctx context.Context) ([]string, error)

	// Disconnects returns a snapshot of the disconnect log in append order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - A copy of the disconnect log
	//   - An error if the backing store could not be read
	Disconnects(ctx context.Context) ([]string, error)
}
