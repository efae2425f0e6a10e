package wsservice

import "sync/atomic"

// State is the lifecycle state of a connection as observed by a service.
type State int32

const (
	Connecting State = iota // Upgrade done, Connected not yet called
	Open                    // Connected returned; messages may arrive
	Closing                 // Close or Drop requested; Disconnected pending
	Closed                  // Disconnected called; terminal
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StateCell holds a State that may be read and advanced from any goroutine.
// The zero value holds Connecting.
type StateCell struct {
	v atomic.Int32
}

// Load returns the current state.
func (c *StateCell) Load() State {
	return State(c.v.Load())
}

// Open moves Connecting to Open. It reports whether the transition happened.
func (c *StateCell) Open() bool {
	return c.v.CompareAndSwap(int32(Connecting), int32(Open))
}

// BeginClosing moves Connecting or Open to Closing. It reports whether the
// transition happened; it is false if the connection is already closing or closed.
func (c *StateCell) BeginClosing() bool {
	for {
		cur := c.v.Load()
		if cur != int32(Connecting) && cur != int32(Open) {
			return false
		}

		if c.v.CompareAndSwap(cur, int32(Closing)) {
			return true
		}
	}
}

// Close moves any state to Closed and returns the state it replaced.
func (c *StateCell) Close() State {
	return State(c.v.Swap(int32(Closed)))
}
