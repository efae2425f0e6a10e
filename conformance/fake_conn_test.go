package conformance

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/cyberinferno/wsconformance/eventlog"
	"github.com/cyberinferno/wsconformance/wsservice"
)

// action is one call a service made on a fakeConn.
type action struct {
	Kind        string // send, sendBinary, ping, close, drop
	Text        string
	Data        []byte
	Code        closecode.Code
	Description string
}

// fakeRequest is a configurable wsservice.Request.
type fakeRequest struct {
	method    string
	major     int
	minor     int
	url       *url.URL
	header    http.Header
	body      io.Reader
	readErr   error
	mu        sync.Mutex
	bodyCalls int
}

func conformingRequest(rawURL string) *fakeRequest {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}

	h := http.Header{}
	h.Set("Sec-WebSocket-Version", "13")
	h.Set("Upgrade", "websocket")

	return &fakeRequest{method: http.MethodGet, major: 1, minor: 1, url: u, header: h}
}

func (r *fakeRequest) Method() string      { return r.method }
func (r *fakeRequest) ProtoMajor() int     { return r.major }
func (r *fakeRequest) ProtoMinor() int     { return r.minor }
func (r *fakeRequest) URL() *url.URL       { return r.url }
func (r *fakeRequest) Header() http.Header { return r.header }

func (r *fakeRequest) ReadBody(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodyCalls++
	if r.readErr != nil {
		return 0, r.readErr
	}
	if r.body == nil {
		return 0, io.EOF
	}
	return r.body.Read(p)
}

func (r *fakeRequest) BodyCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodyCalls
}

// fakeConn records every action a service takes on it.
type fakeConn struct {
	id      string
	req     wsservice.Request
	actions *eventlog.Log[action]
}

func newFakeConn(id string, req wsservice.Request) *fakeConn {
	return &fakeConn{id: id, req: req, actions: eventlog.NewLog[action]()}
}

func (c *fakeConn) ID() string                 { return c.id }
func (c *fakeConn) Request() wsservice.Request { return c.req }
func (c *fakeConn) Send(text string)           { c.actions.Append(action{Kind: "send", Text: text}) }
func (c *fakeConn) SendBinary(data []byte) {
	c.actions.Append(action{Kind: "sendBinary", Data: bytes.Clone(data)})
}
func (c *fakeConn) Ping(payload []byte) {
	c.actions.Append(action{Kind: "ping", Data: bytes.Clone(payload)})
}
func (c *fakeConn) Close(code closecode.Code, description string) {
	c.actions.Append(action{Kind: "close", Code: code, Description: description})
}
func (c *fakeConn) Drop(code closecode.Code, description string) {
	c.actions.Append(action{Kind: "drop", Code: code, Description: description})
}

func (c *fakeConn) Actions() []action {
	return c.actions.Snapshot()
}

// panicConn panics on every send, to exercise callback guarding.
type panicConn struct {
	*fakeConn
}

func (c panicConn) Send(string) {
	panic(errors.New("send exploded"))
}
