package wsserver

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/cyberinferno/wsconformance/logger"
	"github.com/cyberinferno/wsconformance/wsservice"
	"github.com/gorilla/websocket"
)

// session binds one upgraded gorilla connection to one Service. It is the
// wsservice.Connection handed to that service.
//
// The handler goroutine runs Connected and the read loop; a writer goroutine
// drains the outbox. Disconnected runs exactly once, after both are done.
type session struct {
	id      string
	ws      *websocket.Conn
	req     *request
	service wsservice.Service
	config  Config
	log     logger.Logger
	metrics *serverMetrics

	outbox *outbox
	state  wsservice.StateCell
	// localCode is the close code requested through Close or Drop; 0 if none.
	localCode  atomic.Uint32
	closeOnce  sync.Once
	writerDone chan struct{}
}

var _ wsservice.Connection = (*session)(nil)

func newSession(id string, ws *websocket.Conn, req *request, service wsservice.Service, config Config, log logger.Logger, metrics *serverMetrics) *session {
	return &session{
		id:         id,
		ws:         ws,
		req:        req,
		service:    service,
		config:     config,
		log:        log.With(logger.ConnectionID(id)),
		metrics:    metrics,
		outbox:     newOutbox(config.OutboxLimit),
		writerDone: make(chan struct{}),
	}
}

// ID implements wsservice.Connection.
func (s *session) ID() string {
	return s.id
}

// Request implements wsservice.Connection.
func (s *session) Request() wsservice.Request {
	return s.req
}

// Send implements wsservice.Connection.
func (s *session) Send(text string) {
	s.enqueue(frame{kind: textFrame, data: []byte(text)})
}

// SendBinary implements wsservice.Connection.
func (s *session) SendBinary(data []byte) {
	s.enqueue(frame{kind: binaryFrame, data: data})
}

// Ping implements wsservice.Connection.
func (s *session) Ping(payload []byte) {
	var data []byte
	if len(payload) > 0 {
		data = bytes.Clone(payload)
	}

	s.enqueue(frame{kind: pingFrame, data: data})
}

// Close implements wsservice.Connection. Only the first Close or Drop
// decides the code reported to Disconnected.
func (s *session) Close(code closecode.Code, description string) {
	if !s.state.BeginClosing() {
		s.log.Debug("close ignored, connection already closing")
		return
	}

	s.localCode.CompareAndSwap(0, uint32(code))
	s.enqueue(frame{kind: closeFrame, code: code, description: description})
}

// Drop implements wsservice.Connection. A drop after Close still tears the
// transport down, but the code requested by Close is kept.
func (s *session) Drop(code closecode.Code, description string) {
	s.state.BeginClosing()
	s.localCode.CompareAndSwap(0, uint32(code))
	s.enqueue(frame{kind: dropFrame, code: code, description: description})
}

func (s *session) enqueue(f frame) {
	if !s.outbox.push(f) {
		s.metrics.recordDiscard()
		s.log.Debug("frame discarded", logger.Str("kind", f.kind.String()))
	}
}

// run drives the session until the connection ends. It is called on the
// HTTP handler goroutine.
func (s *session) run() {
	go s.writeLoop()

	if s.config.ReadLimit > 0 {
		s.ws.SetReadLimit(s.config.ReadLimit)
	}

	s.state.Open()
	s.invoke("connected", func() { s.service.Connected(s) })

	code := s.readLoop()
	s.finish(code)
}

// readLoop delivers data messages until the connection fails or closes and
// returns the code to report.
func (s *session) readLoop() closecode.Code {
	for {
		messageType, data, err := s.ws.ReadMessage()
		if err != nil {
			return s.resolveCode(err)
		}

		switch messageType {
		case websocket.TextMessage:
			s.metrics.recordMessage("text")
			s.invoke("receivedText", func() { s.service.ReceivedText(string(data), s) })
		case websocket.BinaryMessage:
			s.metrics.recordMessage("binary")
			s.invoke("receivedBinary", func() { s.service.ReceivedBinary(data, s) })
		}
	}
}

// resolveCode picks the close code for a finished connection: a locally
// requested code first, then the code in the peer's close frame, else
// AbnormalClosure for a transport that vanished.
func (s *session) resolveCode(err error) closecode.Code {
	if local := s.localCode.Load(); local != 0 {
		return closecode.Code(local)
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closecode.FromWire(closeErr.Code)
	}

	s.log.Debug("connection lost", logger.Err(err))
	return closecode.AbnormalClosure
}

// finish tears the session down and reports the disconnect exactly once.
func (s *session) finish(code closecode.Code) {
	s.closeOnce.Do(func() {
		s.outbox.close()
		_ = s.ws.Close()
		<-s.writerDone

		s.state.Close()
		s.metrics.recordDisconnect(code.Wire())
		s.log.Debug("disconnected", logger.Field{Key: "code", Value: code.Wire()})
		s.invoke("disconnected", func() { s.service.Disconnected(s, code) })
	})
}

// writeLoop carries out queued frames in order until the outbox is closed
// and drained, or the transport is gone.
func (s *session) writeLoop() {
	defer close(s.writerDone)

	for {
		for f, ok := s.outbox.pop(); ok; f, ok = s.outbox.pop() {
			if err := s.write(f); err != nil {
				if !errors.Is(err, errDropped) {
					s.log.Debug("write failed", logger.Str("kind", f.kind.String()), logger.Err(err))
				}
				_ = s.ws.Close()
				s.outbox.close()
				return
			}
		}

		if s.outbox.isClosed() {
			return
		}

		<-s.outbox.signal
	}
}

func (s *session) write(f frame) error {
	deadline := time.Now().Add(s.config.WriteTimeout)
	s.metrics.recordFrame(f.kind)

	switch f.kind {
	case textFrame:
		_ = s.ws.SetWriteDeadline(deadline)
		return s.ws.WriteMessage(websocket.TextMessage, f.data)
	case binaryFrame:
		_ = s.ws.SetWriteDeadline(deadline)
		return s.ws.WriteMessage(websocket.BinaryMessage, f.data)
	case pingFrame:
		return s.ws.WriteControl(websocket.PingMessage, f.data, deadline)
	case closeFrame:
		payload := []byte{}
		if f.code.IsSendable() {
			payload = websocket.FormatCloseMessage(f.code.Int(), f.description)
		}

		if err := s.ws.WriteControl(websocket.CloseMessage, payload, deadline); err != nil {
			return err
		}

		// The peer answers with its own close frame, which ends the read loop.
		return s.ws.UnderlyingConn().SetReadDeadline(time.Now().Add(s.config.CloseGracePeriod))
	case dropFrame:
		s.log.Debug("dropping connection", logger.Str("reason", f.description))
		return errDropped
	}

	return nil
}

// errDropped makes the writer tear the transport down.
var errDropped = errors.New("connection dropped")

// invoke calls a service callback, recovering a panic so a faulty service
// cannot take the runtime down with it.
func (s *session) invoke(callback string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.recordPanic(callback)
			s.log.Error("service callback panicked", logger.Str("callback", callback), logger.Field{Key: "panic", Value: r})
		}
	}()

	f()
}
