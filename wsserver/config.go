package wsserver

import "time"

// Config holds configuration for the WebSocket runtime.
type Config struct {
	// Addr is the "host:port" to listen on; port 0 picks a free port.
	Addr string
	// Path is the URL path prefix served by the runtime (e.g. "/ws").
	// Requests for any path below it are upgraded.
	Path string
	// IDPrefix is placed before the counter in connection IDs.
	IDPrefix string
	// IDHeader, when non-empty, is the upgrade response header that carries
	// the connection ID to the client.
	IDHeader string
	// ReadBufferSize and WriteBufferSize are passed to the upgrader.
	ReadBufferSize  int
	WriteBufferSize int
	// ReadLimit is the maximum message size in bytes; 0 means no limit.
	ReadLimit int64
	// WriteTimeout bounds every frame write.
	WriteTimeout time.Duration
	// CloseGracePeriod is how long to wait for the peer's close frame after
	// sending ours before giving up on the handshake.
	CloseGracePeriod time.Duration
	// OutboxLimit caps the frames queued per connection; 0 means unbounded.
	// Frames beyond the cap are discarded.
	OutboxLimit int
}

// DefaultConfig returns a Config with default values for the given address.
//
// Parameters:
//   - addr: The "host:port" to listen on
//
// Returns:
//   - A Config with defaults: Path "/ws", IDPrefix "conn", IDHeader
//     "X-Connection-Id", 1KiB buffers, 1MiB read limit, 10s write timeout,
//     5s close grace period, 1024-frame outbox.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:             addr,
		Path:             "/ws",
		IDPrefix:         "conn",
		IDHeader:         "X-Connection-Id",
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		ReadLimit:        1 << 20,
		WriteTimeout:     10 * time.Second,
		CloseGracePeriod: 5 * time.Second,
		OutboxLimit:      1024,
	}
}
