// Package connid assigns identifiers to accepted connections.
package connid

import (
	"strconv"
	"sync/atomic"
)

// Generator produces unique connection IDs of the form "<prefix>-<n>" in a
// concurrency-safe manner. n increases by one on every call, starting at
// start+1, so IDs from one generator never repeat until the counter wraps.
type Generator struct {
	prefix string
	start  uint64
	n      atomic.Uint64
}

// NewGenerator creates a Generator.
//
// Parameters:
//   - prefix: Text placed before the counter; distinguishes runtimes sharing a registry
//   - start: The counter's initial value; the first ID carries start+1
//
// Returns:
//   - A new Generator
func NewGenerator(prefix string, start uint64) *Generator {
	g := &Generator{prefix: prefix, start: start}
	g.n.Store(start)
	return g
}

// Next returns the next connection ID. It is safe for concurrent use.
//
// Returns:
//   - A new ID, e.g. "conn-1"
func (g *Generator) Next() string {
	n := g.n.Add(1)
	if g.prefix == "" {
		return strconv.FormatUint(n, 10)
	}

	return g.prefix + "-" + strconv.FormatUint(n, 10)
}

// Issued returns how many IDs have been handed out.
func (g *Generator) Issued() uint64 {
	return g.n.Load() - g.start
}
