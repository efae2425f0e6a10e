package conformance

import (
	"fmt"
	"time"
)

// FailureKind classifies a recorded failure.
type FailureKind int

const (
	// ContractViolation means the runtime behaved differently from what the
	// contract promises (request shape, close code, callback order, identity).
	ContractViolation FailureKind = iota
	// ReadFailure means reading the upgrade request body failed unexpectedly.
	ReadFailure
	// StoreFailure means a shared store (registry or parameter store)
	// rejected an operation.
	StoreFailure
)

// String returns a human-readable name for the kind.
func (k FailureKind) String() string {
	switch k {
	case ContractViolation:
		return "ContractViolation"
	case ReadFailure:
		return "ReadFailure"
	case StoreFailure:
		return "StoreFailure"
	default:
		return "Unknown"
	}
}

// Failure is one recorded assertion failure. Callbacks never return failures
// to the runtime; they are accumulated on the Suite and inspected afterwards.
type Failure struct {
	Kind         FailureKind
	ConnectionID string
	// Check names the assertion that failed, e.g. "request.method".
	Check   string
	Message string
	// Cause is the underlying error for ReadFailure and StoreFailure.
	Cause error
	Time  time.Time
}

// Error implements error.
func (f Failure) Error() string {
	msg := fmt.Sprintf("%s [%s] %s: %s", f.Kind, f.ConnectionID, f.Check, f.Message)
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}

	return msg
}

// Unwrap returns the underlying cause, if any.
func (f Failure) Unwrap() error {
	return f.Cause
}
