// Package queryparams extracts the query parameters of a connection's
// originating URL and keeps them available to later callbacks on the same
// connection.
package queryparams

import (
	"net/url"
	"sort"
	"strings"
)

// Params is an immutable mapping from decoded parameter name to decoded
// value. Keys are case-sensitive. A Params value may be shared freely
// between goroutines.
type Params struct {
	values map[string]string
}

// Extract parses the query string of rawURL into Params. rawURL may be
// absolute or relative ("/path?a=1"). Keys and values are percent-decoded
// with query semantics ('+' is a space); a component that fails to decode
// is kept as the raw substring instead of failing the whole parse. Empty
// keys are skipped and a later duplicate key overwrites an earlier one.
// An empty query yields empty Params.
//
// Parameters:
//   - rawURL: The request URL, with or without scheme and host
//
// Returns:
//   - The decoded parameters
func Extract(rawURL string) Params {
	query := rawURL
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}

	i := strings.IndexByte(query, '?')
	if i < 0 {
		return Params{values: map[string]string{}}
	}

	return ParseQuery(query[i+1:])
}

// ParseQuery parses a raw query string (without the leading '?') using the
// same rules as Extract.
//
// Parameters:
//   - rawQuery: The query component, e.g. "a=1&b=2"
//
// Returns:
//   - The decoded parameters
func ParseQuery(rawQuery string) Params {
	values := make(map[string]string)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}

		key, value, _ := strings.Cut(pair, "=")
		key = decode(key)
		if key == "" {
			continue
		}

		values[key] = decode(value)
	}

	return Params{values: values}
}

func decode(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}

	return decoded
}

// New builds Params from an existing map. The map is copied.
//
// Parameters:
//   - m: Decoded key-value pairs
//
// Returns:
//   - Params holding a copy of m
func New(m map[string]string) Params {
	values := make(map[string]string, len(m))
	for k, v := range m {
		values[k] = v
	}

	return Params{values: values}
}

// Get returns the value for key and whether it was present.
func (p Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of parameters.
func (p Params) Len() int {
	return len(p.values)
}

// IsEmpty reports whether there are no parameters.
func (p Params) IsEmpty() bool {
	return len(p.values) == 0
}

// Keys returns the parameter names in ascending order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// Values returns the parameter values in ascending order. The order is
// independent of Keys: both lists are sorted on their own.
func (p Params) Values() []string {
	values := make([]string, 0, len(p.values))
	for _, v := range p.values {
		values = append(values, v)
	}

	sort.Strings(values)
	return values
}

// Map returns a copy of the parameters as a plain map.
func (p Params) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}

	return out
}
