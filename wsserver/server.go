// Package wsserver is a WebSocket runtime built on gorilla/websocket. It
// upgrades HTTP requests, assigns connection IDs and drives a
// wsservice.Service through each connection's lifecycle.
package wsserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/cyberinferno/wsconformance/connid"
	"github.com/cyberinferno/wsconformance/logger"
	"github.com/cyberinferno/wsconformance/wsservice"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrServerRunning is returned by Start when the server is already running.
	ErrServerRunning = errors.New("server already running")
	// ErrServerStopped is returned by Start after Stop.
	ErrServerStopped = errors.New("server stopped")
)

// Server accepts WebSocket connections and hands each one to a Service
// created by NewService. Live sessions are tracked by connection ID.
type Server struct {
	config     Config
	newService wsservice.NewServiceFunc
	log        logger.Logger
	metrics    *serverMetrics
	upgrader   websocket.Upgrader
	ids        *connid.Generator
	sessions   sessionTable

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
	stopped    atomic.Bool

	// accepted counts requests entering ServeHTTP; finished counts those that
	// have fully completed, including Disconnected.
	accepted atomic.Int64
	finished atomic.Int64
	wg       sync.WaitGroup
}

// NewServer creates a Server. It does not start listening; call Start, or
// mount the Server on an existing http.ServeMux as an http.Handler.
//
// Parameters:
//   - config: Runtime settings (e.g. from DefaultConfig)
//   - newService: Creates the Service for each accepted connection
//   - log: Logger for runtime events; nil for a no-op logger
//   - reg: Prometheus registerer for runtime metrics; nil disables metrics
//
// Returns:
//   - The new *Server
//   - An error if metric registration fails
func NewServer(config Config, newService wsservice.NewServiceFunc, log logger.Logger, reg prometheus.Registerer) (*Server, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	metrics, err := newServerMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register server metrics: %w", err)
	}

	return &Server{
		config:     config,
		newService: newService,
		log:        log,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		ids: connid.NewGenerator(config.IDPrefix, 0),
	}, nil
}

// Start binds Config.Addr and serves Config.Path in a goroutine.
//
// Returns:
//   - ErrServerRunning if already running, ErrServerStopped after Stop
//   - An error if listening on Addr fails
func (s *Server) Start() error {
	if s.stopped.Load() {
		return ErrServerStopped
	}

	if !s.running.CompareAndSwap(false, true) {
		s.log.Error("server already running")
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.running.Store(false)
		s.log.Error("server failed to start", logger.Err(err))
		return fmt.Errorf("server failed to listen on %s: %w", s.config.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.config.Path, s)
	if !strings.HasSuffix(s.config.Path, "/") {
		mux.Handle(s.config.Path+"/", s)
	}

	httpServer := &http.Server{Handler: mux}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = httpServer
	s.mu.Unlock()

	s.log.Info("websocket server started", logger.Str("addr", ln.Addr().String()), logger.Str("path", s.config.Path))

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket server stopped unexpectedly", logger.Err(err))
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// URL returns the ws:// URL of the served path, or "" before Start.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}

	return "ws://" + addr + s.config.Path
}

// Stop closes the listener, asks every live connection to close with
// GoingAway and waits for their sessions to finish or ctx to end. Safe to
// call when the server is not running.
//
// Parameters:
//   - ctx: Bounds the wait for sessions to finish
//
// Returns:
//   - ctx.Err() if sessions were still running when ctx ended
func (s *Server) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	if !s.running.CompareAndSwap(true, false) {
		s.log.Info("websocket server not running")
		return nil
	}

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer != nil {
		_ = httpServer.Shutdown(ctx)
	}

	s.sessions.each(func(sess *session) bool {
		sess.Close(closecode.GoingAway, "server shutting down")
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("websocket server stopped")
		return nil
	case <-ctx.Done():
		s.sessions.each(func(sess *session) bool {
			_ = sess.ws.Close()
			return true
		})
		return ctx.Err()
	}
}

// Active returns the number of live sessions.
func (s *Server) Active() int {
	return s.sessions.len()
}

// Pending returns the number of requests whose handling, including the
// Disconnected callback, has not yet completed.
func (s *Server) Pending() int64 {
	return s.accepted.Load() - s.finished.Load()
}

// Session returns the Connection for a live connection ID.
func (s *Server) Session(id string) (wsservice.Connection, bool) {
	sess, ok := s.sessions.get(id)
	if !ok {
		return nil, false
	}

	return sess, true
}

// ServeHTTP upgrades the request and runs the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.accepted.Add(1)
	s.wg.Add(1)
	defer func() {
		s.finished.Add(1)
		s.wg.Done()
	}()

	id := s.ids.Next()
	responseHeader := http.Header{}
	if s.config.IDHeader != "" {
		responseHeader.Set(s.config.IDHeader, id)
	}

	ws, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.metrics.recordUpgradeFailure()
		s.log.Warn("websocket upgrade failed", logger.ConnectionID(id), logger.Err(err))
		return
	}

	sess := newSession(id, ws, newRequest(r), s.newService(), s.config, s.log, s.metrics)
	s.sessions.add(sess)
	defer s.sessions.remove(id)

	s.metrics.recordConnect()
	s.log.Debug("connection upgraded", logger.ConnectionID(id), logger.Str("remote", r.RemoteAddr))

	sess.run()
}
