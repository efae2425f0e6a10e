// Package wsclient provides an event-driven WebSocket client that records
// everything it receives, so tests can assert on replies, pings and the
// close code the server sent. Callers can also register handlers to be
// notified of state changes, messages, pings and errors.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/cyberinferno/wsconformance/eventlog"
	"github.com/cyberinferno/wsconformance/logger"
	"github.com/gorilla/websocket"
)

var (
	// ErrClientClosed is returned when the connection has ended or Connect is
	// called on a client that has already been used.
	ErrClientClosed = errors.New("client is closed")
	// ErrNotConnected is returned by send methods before Connect succeeds.
	ErrNotConnected = errors.New("not connected")
)

// ConnectionState represents the current state of the WebSocket connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not yet connected
	Connecting                          // Handshake in progress
	Connected                           // Handshake completed
	Closed                              // Connection ended; the client cannot be reused
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// MessageType distinguishes text and binary data messages.
type MessageType int

const (
	Text MessageType = iota
	Binary
)

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	URL       string          // The URL dialed
	Timestamp time.Time       // When the state change occurred
	Error     error           // Non-nil if the state change was due to an error
}

// MessageEvent is one data message received from the server.
type MessageEvent struct {
	Type      MessageType // Text or Binary
	Data      []byte      // The message payload
	Timestamp time.Time   // When the message was received
}

// PingEvent is one ping control frame received from the server.
type PingEvent struct {
	Payload   []byte    // Application data; empty for a ping without payload
	Timestamp time.Time // When the ping was received
}

// ErrorEvent is emitted when a dial, read or write error occurs.
type ErrorEvent struct {
	Error     error     // The error that occurred
	Timestamp time.Time // When the error occurred
}

// ConnectionStateHandler is called when the connection state changes.
type ConnectionStateHandler func(event ConnectionStateEvent)

// MessageHandler is called for each data message.
type MessageHandler func(event MessageEvent)

// PingHandler is called for each ping frame, before the pong is sent.
type PingHandler func(event PingEvent)

// ErrorHandler is called when an error occurs.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the WebSocket client.
type Config struct {
	// URL is the ws:// or wss:// URL to dial, including any query string.
	URL string
	// Header carries extra request headers for the handshake.
	Header http.Header
	// HandshakeTimeout bounds the opening handshake; 0 means no timeout.
	HandshakeTimeout time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadBufferSize and WriteBufferSize are passed to the dialer.
	ReadBufferSize  int
	WriteBufferSize int
	// IDHeader names the handshake response header carrying the server's
	// connection ID.
	IDHeader string
}

// DefaultConfig returns a Config with default values for the given URL.
//
// Parameters:
//   - url: The WebSocket URL to dial
//
// Returns:
//   - A Config with defaults: HandshakeTimeout 10s, WriteTimeout 10s,
//     1KiB buffers, IDHeader "X-Connection-Id".
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		IDHeader:         "X-Connection-Id",
	}
}

// Client is a single-use WebSocket client. Register handlers, call Connect,
// then exchange messages; after the connection ends the client is Closed.
// Handlers run on the read goroutine in the order events arrive. It is safe
// for concurrent use.
type Client struct {
	config Config
	log    logger.Logger

	mu           sync.RWMutex
	conn         *websocket.Conn
	state        ConnectionState
	connectionID string

	onConnectionState ConnectionStateHandler
	onMessage         MessageHandler
	onPing            PingHandler
	onError           ErrorHandler

	writeMu   sync.Mutex
	messages  *eventlog.Log[MessageEvent]
	pings     *eventlog.Log[PingEvent]
	closeCode atomic.Uint32
	// peerCode is the code from the peer's close frame; 0 until one arrives.
	peerCode atomic.Uint32

	sigMu  sync.Mutex
	signal chan struct{}
	done   chan struct{}
}

// NewClient creates a new client with the given config. The client starts
// in Disconnected state; call Connect to establish a connection.
//
// Parameters:
//   - config: Connection settings (e.g. from DefaultConfig)
//   - log: Logger for client events; nil for a no-op logger
//
// Returns:
//   - A new *Client
func NewClient(config Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		config:   config,
		log:      log,
		state:    Disconnected,
		messages: eventlog.NewLog[MessageEvent](),
		pings:    eventlog.NewLog[PingEvent](),
		signal:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnConnectionState registers the handler for connection state changes.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnMessage registers the handler for data messages.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnPing registers the handler for ping frames.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnPing(handler PingHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPing = handler
}

// OnError registers the handler for errors.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect performs the opening handshake and starts the read goroutine.
//
// Parameters:
//   - ctx: Bounds the handshake
//
// Returns:
//   - nil on success
//   - ErrClientClosed if the client was already used, or the dial error
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.HandshakeTimeout,
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
	}

	conn, resp, err := dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}

		c.emitError(err)
		c.setState(Closed, err)
		close(c.done)
		return err
	}

	conn.SetPingHandler(c.handlePing)
	conn.SetCloseHandler(func(code int, _ string) error {
		return c.handleClose(conn, code)
	})

	c.mu.Lock()
	c.conn = conn
	if c.config.IDHeader != "" {
		c.connectionID = resp.Header.Get(c.config.IDHeader)
	}
	c.mu.Unlock()

	c.setState(Connected, nil)
	c.log.Debug("client connected", logger.Str("url", c.config.URL), logger.ConnectionID(c.ConnectionID()))

	go c.readLoop(conn)

	return nil
}

// ConnectionID returns the ID the server assigned, taken from the handshake
// response. It is empty before Connect or if the server sent none.
func (c *Client) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectionID
}

// GetState returns the current connection state.
func (c *Client) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if the client is in Connected state.
func (c *Client) IsConnected() bool {
	return c.GetState() == Connected
}

// SendText sends a text message.
//
// Parameters:
//   - text: The message payload
//
// Returns:
//   - nil on success; ErrNotConnected, or the write error
func (c *Client) SendText(text string) error {
	return c.write(websocket.TextMessage, []byte(text))
}

// SendBinary sends a binary message.
//
// Parameters:
//   - data: The message payload; not modified
//
// Returns:
//   - nil on success; ErrNotConnected, or the write error
func (c *Client) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

// Close starts the close handshake. The connection ends once the server
// answers; use Wait or Done to observe that.
//
// Parameters:
//   - code: The close reason to send; codes that may not appear on the wire
//     are sent as a close frame without payload
//   - reason: Human-readable reason
//
// Returns:
//   - nil on success; ErrNotConnected, or the write error
func (c *Client) Close(code closecode.Code, reason string) error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}

	payload := []byte{}
	if code.IsSendable() {
		payload = websocket.FormatCloseMessage(code.Int(), reason)
	}

	err = conn.WriteControl(websocket.CloseMessage, payload, c.deadline())
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.emitError(err)
		return err
	}

	return nil
}

// Abort closes the underlying transport without a close handshake.
func (c *Client) Abort() error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}

	return conn.Close()
}

// Done returns a channel closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the connection has ended or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns a copy of every data message received so far.
func (c *Client) Messages() []MessageEvent {
	return c.messages.Snapshot()
}

// Texts returns the payloads of the text messages received so far.
func (c *Client) Texts() []string {
	var texts []string
	c.messages.Range(func(_ int, m MessageEvent) bool {
		if m.Type == Text {
			texts = append(texts, string(m.Data))
		}
		return true
	})

	return texts
}

// Pings returns a copy of every ping received so far.
func (c *Client) Pings() []PingEvent {
	return c.pings.Snapshot()
}

// CloseCode returns the close code observed when the connection ended.
// ok is false while the connection is still open.
func (c *Client) CloseCode() (code closecode.Code, ok bool) {
	v := c.closeCode.Load()
	if v == 0 {
		return 0, false
	}

	return closecode.Code(v), true
}

// WaitMessages blocks until at least n data messages have been received.
//
// Returns:
//   - nil once n messages are recorded
//   - ErrClientClosed if the connection ended first, or ctx.Err()
func (c *Client) WaitMessages(ctx context.Context, n int) error {
	return c.waitFor(ctx, func() bool { return c.messages.Len() >= n })
}

// WaitPings blocks until at least n pings have been received.
//
// Returns:
//   - nil once n pings are recorded
//   - ErrClientClosed if the connection ended first, or ctx.Err()
func (c *Client) WaitPings(ctx context.Context, n int) error {
	return c.waitFor(ctx, func() bool { return c.pings.Len() >= n })
}

func (c *Client) waitFor(ctx context.Context, cond func() bool) error {
	for {
		c.sigMu.Lock()
		signal := c.signal
		c.sigMu.Unlock()

		if cond() {
			return nil
		}

		select {
		case <-signal:
		case <-c.done:
			if cond() {
				return nil
			}
			return ErrClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// broadcast wakes every waiter.
func (c *Client) broadcast() {
	c.sigMu.Lock()
	close(c.signal)
	c.signal = make(chan struct{})
	c.sigMu.Unlock()
}

func (c *Client) activeConn() (*websocket.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != Connected || c.conn == nil {
		return nil, ErrNotConnected
	}

	return c.conn, nil
}

func (c *Client) deadline() time.Time {
	if c.config.WriteTimeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(c.config.WriteTimeout)
}

func (c *Client) write(messageType int, data []byte) error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(c.deadline())
	if err := conn.WriteMessage(messageType, data); err != nil {
		c.emitError(err)
		return err
	}

	return nil
}

func (c *Client) handlePing(appData string) error {
	event := PingEvent{Payload: []byte(appData), Timestamp: time.Now()}
	c.pings.Append(event)

	c.mu.RLock()
	handler := c.onPing
	conn := c.conn
	c.mu.RUnlock()

	if handler != nil {
		handler(event)
	}
	c.broadcast()

	err := conn.WriteControl(websocket.PongMessage, []byte(appData), c.deadline())
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}

	return err
}

// handleClose records the peer's close code and answers its close frame.
// When our own close frame went out first there is nothing left to send.
func (c *Client) handleClose(conn *websocket.Conn, code int) error {
	c.peerCode.Store(uint32(closecode.FromWire(code)))

	err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), c.deadline())
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}

	return err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(conn, err)
			return
		}

		event := MessageEvent{Data: data, Timestamp: time.Now()}
		if messageType == websocket.BinaryMessage {
			event.Type = Binary
		}

		c.messages.Append(event)

		c.mu.RLock()
		handler := c.onMessage
		c.mu.RUnlock()

		if handler != nil {
			handler(event)
		}
		c.broadcast()
	}
}

func (c *Client) finish(conn *websocket.Conn, err error) {
	code := closecode.AbnormalClosure

	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		code = closecode.FromWire(closeErr.Code)
	case c.peerCode.Load() != 0:
		// The peer's close frame arrived but answering it failed.
		code = closecode.Code(c.peerCode.Load())
	default:
		c.emitError(err)
	}

	c.closeCode.Store(uint32(code))
	_ = conn.Close()

	c.log.Debug("client disconnected", logger.ConnectionID(c.ConnectionID()), logger.Field{Key: "code", Value: code.Wire()})
	c.setState(Closed, nil)

	close(c.done)
	c.broadcast()
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onConnectionState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			URL:       c.config.URL,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}
