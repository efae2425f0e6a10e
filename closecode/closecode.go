// Package closecode defines the WebSocket close reason codes exchanged in
// close frames and reported to services when a connection ends. The mapping
// between each named code and its wire value lives in this package only.
package closecode

import (
	"errors"
	"fmt"
)

// Code is a WebSocket close reason code. Its underlying value is the
// 16-bit status code carried in a close frame (RFC 6455 section 7.4).
type Code uint16

const (
	Normal              Code = 1000 // Purpose of the connection has been fulfilled
	GoingAway           Code = 1001 // Endpoint is going away (server shutdown, page navigation)
	ProtocolError       Code = 1002 // Endpoint received a malformed frame
	UnsupportedData     Code = 1003 // Endpoint received a data type it cannot accept
	NoStatusReceived    Code = 1005 // Close frame carried no status code; never sent on the wire
	AbnormalClosure     Code = 1006 // Transport went away without a close frame; never sent on the wire
	InvalidUTF8         Code = 1007 // Text message payload was not valid UTF-8
	PolicyViolation     Code = 1008 // Message violated the endpoint's policy
	MessageTooBig       Code = 1009 // Message too large to process
	MissingExtension    Code = 1010 // Client expected an extension the server did not negotiate
	InternalServerError Code = 1011 // Server hit an unexpected condition
	TLSHandshakeFailure Code = 1015 // TLS handshake failed; never sent on the wire
)

// Bounds of the range reserved for application and library defined codes.
const (
	UserDefinedMin Code = 3000
	UserDefinedMax Code = 4999
)

// ErrInvalidCode is returned when a value cannot be used as a user defined close code.
var ErrInvalidCode = errors.New("invalid close code")

var names = map[Code]string{
	Normal:              "normal",
	GoingAway:           "goingAway",
	ProtocolError:       "protocolError",
	UnsupportedData:     "unsupportedData",
	NoStatusReceived:    "noStatusReceived",
	AbnormalClosure:     "abnormalClosure",
	InvalidUTF8:         "invalidUTF8",
	PolicyViolation:     "policyViolation",
	MessageTooBig:       "messageTooBig",
	MissingExtension:    "missingExtension",
	InternalServerError: "internalServerError",
	TLSHandshakeFailure: "tlsHandshakeFailure",
}

// UserDefined returns the close code for an application defined status.
//
// Parameters:
//   - code: The wire value; must be within [UserDefinedMin, UserDefinedMax]
//
// Returns:
//   - The Code for the value
//   - ErrInvalidCode if the value is outside the user defined range
func UserDefined(code uint16) (Code, error) {
	c := Code(code)
	if c < UserDefinedMin || c > UserDefinedMax {
		return 0, fmt.Errorf("%w: %d is outside %d-%d", ErrInvalidCode, code, UserDefinedMin, UserDefinedMax)
	}

	return c, nil
}

// FromWire converts a status code read from a close frame into a Code.
// Values with no named variant are kept as-is; use IsKnown or IsUserDefined
// to classify them.
//
// Parameters:
//   - code: The status code as read from the wire (or reported by a transport library)
//
// Returns:
//   - The Code carrying the same wire value
func FromWire(code int) Code {
	if code < 0 || code > 0xFFFF {
		return AbnormalClosure
	}

	return Code(code)
}

// Wire returns the numeric status code sent in a close frame.
func (c Code) Wire() uint16 {
	return uint16(c)
}

// Int returns the wire value as an int, the form transport libraries usually expect.
func (c Code) Int() int {
	return int(c)
}

// IsKnown reports whether c is one of the named close codes.
func (c Code) IsKnown() bool {
	_, ok := names[c]
	return ok
}

// IsUserDefined reports whether c lies in the application defined range.
func (c Code) IsUserDefined() bool {
	return c >= UserDefinedMin && c <= UserDefinedMax
}

// IsSendable reports whether c may appear in a close frame. The reserved
// codes 1005, 1006 and 1015 are only ever reported locally.
func (c Code) IsSendable() bool {
	switch c {
	case NoStatusReceived, AbnormalClosure, TLSHandshakeFailure:
		return false
	}

	return c.IsKnown() || c.IsUserDefined()
}

// String returns the variant name, "userDefined(N)" for application codes,
// or "unknown(N)" otherwise.
func (c Code) String() string {
	if name, ok := names[c]; ok {
		return name
	}

	if c.IsUserDefined() {
		return fmt.Sprintf("userDefined(%d)", uint16(c))
	}

	return fmt.Sprintf("unknown(%d)", uint16(c))
}
