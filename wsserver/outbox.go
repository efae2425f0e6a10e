package wsserver

import (
	"sync"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/eapache/queue"
)

type frameKind int

const (
	textFrame frameKind = iota
	binaryFrame
	pingFrame
	closeFrame
	dropFrame
)

// String returns the frame kind as used in metric labels.
func (k frameKind) String() string {
	switch k {
	case textFrame:
		return "text"
	case binaryFrame:
		return "binary"
	case pingFrame:
		return "ping"
	case closeFrame:
		return "close"
	case dropFrame:
		return "drop"
	default:
		return "unknown"
	}
}

// frame is one action queued by a service.
type frame struct {
	kind        frameKind
	data        []byte
	code        closecode.Code
	description string
}

// outbox is a FIFO of frames between a connection's callbacks and its
// writer goroutine. Actions are written in the order they were queued.
type outbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	limit  int
	closed bool
	signal chan struct{}
}

func newOutbox(limit int) *outbox {
	return &outbox{
		q:      queue.New(),
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

// terminal reports whether f ends the connection.
func (f frame) terminal() bool {
	return f.kind == closeFrame || f.kind == dropFrame
}

// push queues f. It returns false if the outbox is closed, or if it is full
// and f is a data or ping frame. Close and drop frames are never refused
// while the outbox is open.
func (o *outbox) push(f frame) bool {
	o.mu.Lock()
	if o.closed || (!f.terminal() && o.limit > 0 && o.q.Length() >= o.limit) {
		o.mu.Unlock()
		return false
	}

	o.q.Add(f)
	o.mu.Unlock()

	o.notify()
	return true
}

// pop removes the oldest frame. ok is false when the outbox is empty.
func (o *outbox) pop() (f frame, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.q.Length() == 0 {
		return frame{}, false
	}

	return o.q.Remove().(frame), true
}

// close stops accepting frames. Frames already queued can still be popped.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.notify()
}

func (o *outbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Length()
}

func (o *outbox) notify() {
	select {
	case o.signal <- struct{}{}:
	default:
	}
}
