// Package wsservice defines the contract between a WebSocket runtime and the
// services it hosts. The runtime calls a Service on connection lifecycle
// events; the Service drives the connection back through Connection.
//
// Neither side depends on a concrete type of the other: a runtime adapter
// implements Connection and Request, and a service implements Service.
package wsservice

import (
	"net/http"
	"net/url"

	"github.com/cyberinferno/wsconformance/closecode"
)

// Service is implemented by components that handle WebSocket connections.
// For a single connection the runtime calls Connected exactly once, then
// ReceivedText/ReceivedBinary zero or more times, then Disconnected exactly
// once. Calls for one connection never overlap but may run on different
// goroutines; calls for different connections may run in parallel.
//
// Callbacks must return normally. A service reports problems through its
// own channels (logs, recorded failures), never by panicking into the runtime.
type Service interface {
	// Connected is called once the upgrade has completed and the connection is open.
	//
	// Parameters:
	//   - conn: The new connection
	Connected(conn Connection)

	// ReceivedText is called for each complete text message.
	//
	// Parameters:
	//   - message: The message payload
	//   - conn: The connection the message arrived on
	ReceivedText(message string, conn Connection)

	// ReceivedBinary is called for each complete binary message.
	//
	// Parameters:
	//   - message: The message payload; the service may retain it
	//   - conn: The connection the message arrived on
	ReceivedBinary(message []byte, conn Connection)

	// Disconnected is called once the connection has ended, whichever side
	// ended it.
	//
	// Parameters:
	//   - conn: The connection that ended
	//   - code: The close reason; AbnormalClosure if the transport vanished without a close handshake
	Disconnected(conn Connection, code closecode.Code)
}

// NewServiceFunc creates the Service that will handle one connection. The
// runtime calls it once per accepted connection, before Connected.
type NewServiceFunc func() Service

// Connection is the capability set a runtime hands to a Service. All actions
// are requests to the runtime: they return immediately and are carried out
// in the order they were made.
type Connection interface {
	// ID returns the identifier the runtime assigned to this connection.
	ID() string

	// Request returns the upgrade request that opened this connection. It
	// remains readable for the lifetime of the connection and after it.
	Request() Request

	// Send queues a text message. Delivery is best-effort.
	//
	// Parameters:
	//   - text: The message payload
	Send(text string)

	// SendBinary queues a binary message. Delivery is best-effort.
	//
	// Parameters:
	//   - data: The message payload; must not be modified after the call
	SendBinary(data []byte)

	// Ping queues a ping control frame.
	//
	// Parameters:
	//   - payload: Application data for the frame; nil or empty sends a ping with no payload
	Ping(payload []byte)

	// Close starts the close handshake. Disconnected later reports code, or a
	// runtime-substituted code if the handshake cannot complete.
	//
	// Parameters:
	//   - code: The close reason to send
	//   - description: Human-readable reason carried in the close frame
	Close(code closecode.Code, description string)

	// Drop tears the connection down without a close handshake. Disconnected
	// is still called, reporting code.
	//
	// Parameters:
	//   - code: The close reason to report
	//   - description: Human-readable reason, for logs only
	Drop(code closecode.Code, description string)
}

// Request exposes the read-only parts of the HTTP upgrade request.
type Request interface {
	// Method returns the HTTP method, "GET" for a WebSocket upgrade.
	Method() string

	// ProtoMajor returns the major HTTP version number.
	ProtoMajor() int

	// ProtoMinor returns the minor HTTP version number.
	ProtoMinor() int

	// URL returns the request URL as sent by the client (path and query).
	URL() *url.URL

	// Header returns the request headers. Each name maps to its values in
	// the order they were received.
	Header() http.Header

	// ReadBody reads from the request body into p. An upgrade request has no
	// body, so a conforming runtime reports 0 bytes and io.EOF.
	//
	// Parameters:
	//   - p: Destination buffer
	//
	// Returns:
	//   - The number of bytes read
	//   - io.EOF at end of body, or the underlying read error
	ReadBody(p []byte) (int, error)
}
