package conformance

import (
	"time"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/cyberinferno/wsconformance/wsservice"
)

// TriggerAction is what a reserved message payload makes the service do.
type TriggerAction int

const (
	ActionClose TriggerAction = iota // Start a close handshake
	ActionDrop                       // Drop the transport without a handshake
	ActionPing                       // Send a ping control frame
)

// String returns a human-readable name for the action.
func (a TriggerAction) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionDrop:
		return "drop"
	case ActionPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Trigger describes the action taken when a text message exactly equals a
// reserved payload. Code and Description apply to close and drop; Payload
// applies to ping.
type Trigger struct {
	Action      TriggerAction
	Code        closecode.Code
	Description string
	Payload     string
}

// apply performs the trigger on conn. Close and drop move state to Closing.
func (t Trigger) apply(conn wsservice.Connection, state *wsservice.StateCell) {
	switch t.Action {
	case ActionClose:
		state.BeginClosing()
		conn.Close(t.Code, t.Description)
	case ActionDrop:
		state.BeginClosing()
		conn.Drop(t.Code, t.Description)
	case ActionPing:
		conn.Ping([]byte(t.Payload))
	}
}

// DefaultTriggers returns the reserved payloads: "close", "drop" and "ping".
//
// Returns:
//   - A new map that callers may modify
func DefaultTriggers() map[string]Trigger {
	return map[string]Trigger{
		"close": {Action: ActionClose, Code: closecode.GoingAway, Description: "Going away..."},
		"drop":  {Action: ActionDrop, Code: closecode.PolicyViolation, Description: "Droping..."},
		"ping":  {Action: ActionPing, Payload: "Hello"},
	}
}

// RecheckMode selects how the delayed request check runs.
type RecheckMode int

const (
	// RecheckScheduled runs the second check on a timer after Connected
	// returns. Suite.Wait waits for it.
	RecheckScheduled RecheckMode = iota
	// RecheckInline sleeps inside Connected and runs the second check before
	// returning, holding up the connection's callbacks for the delay.
	RecheckInline
)

// Config holds the behavior of the services a Suite creates.
type Config struct {
	// ExpectedCloseCode is the code Disconnected must receive.
	ExpectedCloseCode closecode.Code
	// TestServerRequest enables request introspection in Connected.
	TestServerRequest bool
	// RecheckDelay is the wait before introspecting the request a second
	// time. Zero disables the second check.
	RecheckDelay time.Duration
	// RecheckMode selects whether the second check is scheduled or inline.
	RecheckMode RecheckMode
	// PathPrefix is the prefix the upgrade request path must start with.
	PathPrefix string
	// PingMessage, when non-nil, is sent as a ping in Connected. An empty
	// string sends a ping with no payload.
	PingMessage *string
	// CaptureQueryParams appends the connection's query keys and values to
	// every text echo.
	CaptureQueryParams bool
	// Triggers maps exact text payloads to actions taken after the echo.
	Triggers map[string]Trigger
	// StoreTimeout bounds each registry or parameter store call.
	StoreTimeout time.Duration
}

// DefaultConfig returns a Config with default values: expects a normal
// closure, no introspection, a 100ms recheck delay when introspection is
// enabled, path prefix "/ws", no ping, no query capture, the default
// triggers and a 5s store timeout.
//
// Returns:
//   - A Config ready to be customized
func DefaultConfig() Config {
	return Config{
		ExpectedCloseCode:  closecode.Normal,
		TestServerRequest:  false,
		RecheckDelay:       100 * time.Millisecond,
		RecheckMode:        RecheckScheduled,
		PathPrefix:         "/ws",
		PingMessage:        nil,
		CaptureQueryParams: false,
		Triggers:           DefaultTriggers(),
		StoreTimeout:       5 * time.Second,
	}
}
