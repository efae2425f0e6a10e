// Package utils provides small generic helpers shared by the other packages.
package utils

// Pointer returns a pointer to the given value. It is the usual way to fill
// optional configuration fields, e.g. a ping payload that may be absent.
//
// Parameters:
//   - value: The value to convert to a pointer
//
// Returns:
//   - A pointer to a copy of value
func Pointer[T any](value T) *T {
	return &value
}

// Deref returns the value p points to, or fallback when p is nil.
//
// Parameters:
//   - p: Optional value
//   - fallback: Value used when p is nil
//
// Returns:
//   - *p, or fallback
func Deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}

	return *p
}
