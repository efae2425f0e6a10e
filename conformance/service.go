// Package conformance implements a WebSocket service that exercises the
// runtime contract and records every deviation it observes, plus a harness
// that drives scenarios against a runtime and reports the outcome.
//
// A Suite holds the state shared by all connections (event registry, query
// parameter store, recorded failures). Each connection gets its own Service
// from Suite.NewService.
package conformance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/cyberinferno/wsconformance/eventlog"
	"github.com/cyberinferno/wsconformance/identity"
	"github.com/cyberinferno/wsconformance/logger"
	"github.com/cyberinferno/wsconformance/queryparams"
	"github.com/cyberinferno/wsconformance/registry"
	"github.com/cyberinferno/wsconformance/utils"
	"github.com/cyberinferno/wsconformance/wsservice"
	"github.com/patrickmn/go-cache"
)

// Suite is the shared state behind a family of per-connection services.
// It is safe for concurrent use.
type Suite struct {
	config   Config
	registry registry.Registry
	params   queryparams.Store
	failures *eventlog.Log[Failure]
	log      logger.Logger

	// rechecks counts scheduled request rechecks; idle is closed and
	// replaced each time the count drops to zero.
	recheckMu sync.Mutex
	rechecks  int
	idle      chan struct{}
}

// NewSuite creates a Suite. Nil dependencies are replaced with in-memory
// defaults and a no-op logger.
//
// Parameters:
//   - config: Behavior of every service the suite creates
//   - reg: Where connect and disconnect events are recorded; nil for a MemoryRegistry
//   - params: Where query parameters are published; nil for a MemoryStore
//   - log: Logger for suite and service events; nil for a no-op logger
//
// Returns:
//   - A new *Suite
func NewSuite(config Config, reg registry.Registry, params queryparams.Store, log logger.Logger) *Suite {
	if reg == nil {
		reg = registry.NewMemoryRegistry()
	}

	if params == nil {
		params = queryparams.NewMemoryStore(cache.NoExpiration, time.Minute)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	if config.Triggers == nil {
		config.Triggers = map[string]Trigger{}
	}

	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 5 * time.Second
	}

	log.Debug("suite created",
		logger.Str("expected_close_code", config.ExpectedCloseCode.String()),
		logger.Field{Key: "test_server_request", Value: config.TestServerRequest},
		logger.Field{Key: "ping_enabled", Value: config.PingMessage != nil},
		logger.Str("ping_message", utils.Deref(config.PingMessage, "")),
		logger.Field{Key: "capture_query_params", Value: config.CaptureQueryParams},
	)

	return &Suite{
		config:   config,
		registry: reg,
		params:   params,
		failures: eventlog.NewLog[Failure](),
		log:      log,
		idle:     make(chan struct{}),
	}
}

// NewService returns a Service for one new connection. Its signature
// matches wsservice.NewServiceFunc.
func (s *Suite) NewService() wsservice.Service {
	return &Service{suite: s}
}

// Config returns the configuration the suite was created with.
func (s *Suite) Config() Config {
	return s.config
}

// Failures returns a snapshot of every failure recorded so far.
func (s *Suite) Failures() []Failure {
	return s.failures.Snapshot()
}

// Connects returns a snapshot of the connect log.
func (s *Suite) Connects(ctx context.Context) ([]string, error) {
	return s.registry.Connects(ctx)
}

// Disconnects returns a snapshot of the disconnect log.
func (s *Suite) Disconnects(ctx context.Context) ([]string, error) {
	return s.registry.Disconnects(ctx)
}

// Wait blocks until every scheduled request recheck has finished or ctx is done.
//
// Parameters:
//   - ctx: Bounds the wait
//
// Returns:
//   - ctx.Err() if ctx finished first, nil otherwise
func (s *Suite) Wait(ctx context.Context) error {
	for {
		s.recheckMu.Lock()
		if s.rechecks == 0 {
			s.recheckMu.Unlock()
			return nil
		}
		idle := s.idle
		s.recheckMu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Suite) beginRecheck() {
	s.recheckMu.Lock()
	s.rechecks++
	s.recheckMu.Unlock()
}

func (s *Suite) endRecheck() {
	s.recheckMu.Lock()
	defer s.recheckMu.Unlock()

	s.rechecks--
	if s.rechecks == 0 {
		close(s.idle)
		s.idle = make(chan struct{})
	}
}

func (s *Suite) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.StoreTimeout)
}

func (s *Suite) record(f Failure) {
	if f.Time.IsZero() {
		f.Time = time.Now()
	}

	s.failures.Append(f)
	s.log.Warn("conformance failure",
		logger.ConnectionID(f.ConnectionID),
		logger.Str("kind", f.Kind.String()),
		logger.Str("check", f.Check),
		logger.Str("detail", f.Message),
		logger.Field{Key: "cause", Value: f.Cause},
	)
}

func (s *Suite) violation(connID, check, message string) {
	s.record(Failure{Kind: ContractViolation, ConnectionID: connID, Check: check, Message: message})
}

func (s *Suite) storeFailure(connID, check string, err error) {
	s.record(Failure{Kind: StoreFailure, ConnectionID: connID, Check: check, Message: "store operation failed", Cause: err})
}

// Service handles a single connection. It stores the connection's identity,
// echoes messages, acts on reserved payloads and checks what the runtime
// reports. Every problem is recorded on the Suite; no callback panics.
type Service struct {
	suite *Suite
	id    identity.Identity
	state wsservice.StateCell
}

var _ wsservice.Service = (*Service)(nil)

// ID returns the identity stored by Connected, or "" before it.
func (s *Service) ID() string {
	return s.id.Get()
}

// State returns the connection state as observed by this service.
func (s *Service) State() wsservice.State {
	return s.state.Load()
}

// guard turns a panic escaping a callback into a recorded violation.
func (s *Service) guard(conn wsservice.Connection, callback string) {
	if r := recover(); r != nil {
		id := s.id.Get()
		if conn != nil {
			id = conn.ID()
		}

		s.suite.violation(id, callback+".panic", fmt.Sprintf("callback panicked: %v", r))
	}
}

// Connected implements wsservice.Service.
func (s *Service) Connected(conn wsservice.Connection) {
	defer s.guard(conn, "connected")

	cfg := s.suite.config
	id := conn.ID()
	s.id.Set(id)

	if !s.state.Open() {
		s.suite.violation(id, "connected.state", fmt.Sprintf("connected called in state %s", s.state.Load()))
	}

	ctx, cancel := s.suite.storeContext()
	defer cancel()

	if err := s.suite.registry.RecordConnect(ctx, id); err != nil {
		s.suite.storeFailure(id, "connected.registry", err)
	}

	s.suite.log.Debug("connected", logger.ConnectionID(id))

	if cfg.PingMessage != nil {
		conn.Ping([]byte(*cfg.PingMessage))
	}

	if cfg.TestServerRequest {
		s.checkRequest(conn, "initial")
		s.scheduleRecheck(conn)
	}

	if cfg.CaptureQueryParams {
		if _, err := s.suite.params.GetOrExtract(ctx, id, requestURI(conn)); err != nil {
			s.suite.storeFailure(id, "connected.params", err)
		}
	}
}

// scheduleRecheck runs the second request check after the configured delay.
// It is only called after the first check has returned.
func (s *Service) scheduleRecheck(conn wsservice.Connection) {
	cfg := s.suite.config
	if cfg.RecheckDelay <= 0 {
		return
	}

	if cfg.RecheckMode == RecheckInline {
		time.Sleep(cfg.RecheckDelay)
		s.checkRequest(conn, "delayed")
		return
	}

	s.suite.beginRecheck()
	time.AfterFunc(cfg.RecheckDelay, func() {
		defer s.suite.endRecheck()
		defer s.guard(conn, "recheck")
		s.checkRequest(conn, "delayed")
	})
}

// ReceivedText implements wsservice.Service. The echo is always queued
// before any trigger action.
func (s *Service) ReceivedText(message string, conn wsservice.Connection) {
	defer s.guard(conn, "receivedText")

	s.checkDeliverable(conn, "receivedText")

	reply := message
	if s.suite.config.CaptureQueryParams {
		reply = message + s.describeParams(conn)
	}

	conn.Send(reply)

	if trigger, ok := s.suite.config.Triggers[message]; ok {
		s.suite.log.Debug("trigger", logger.ConnectionID(conn.ID()), logger.Str("action", trigger.Action.String()))
		trigger.apply(conn, &s.state)
	}
}

// ReceivedBinary implements wsservice.Service.
func (s *Service) ReceivedBinary(message []byte, conn wsservice.Connection) {
	defer s.guard(conn, "receivedBinary")

	s.checkDeliverable(conn, "receivedBinary")
	conn.SendBinary(message)
}

// Disconnected implements wsservice.Service.
func (s *Service) Disconnected(conn wsservice.Connection, code closecode.Code) {
	defer s.guard(conn, "disconnected")

	id := s.id.Get()
	if prev := s.state.Close(); prev == wsservice.Closed {
		s.suite.violation(id, "disconnected.state", "disconnected called more than once")
	}

	if id != conn.ID() {
		s.suite.violation(conn.ID(), "disconnected.identity", fmt.Sprintf("stored identity %q does not match connection %q", id, conn.ID()))
		id = conn.ID()
	}

	ctx, cancel := s.suite.storeContext()
	defer cancel()

	if err := s.suite.registry.RecordDisconnect(ctx, id); err != nil {
		s.suite.storeFailure(id, "disconnected.registry", err)
	}

	if want := s.suite.config.ExpectedCloseCode; code.Wire() != want.Wire() {
		s.suite.violation(id, "disconnected.code", fmt.Sprintf("expected %s (%d), got %s (%d)", want, want.Wire(), code, code.Wire()))
	}

	if s.suite.config.CaptureQueryParams {
		s.suite.params.Forget(ctx, id)
	}

	s.suite.log.Debug("disconnected", logger.ConnectionID(id), logger.Field{Key: "code", Value: code.Wire()})
}

func (s *Service) checkDeliverable(conn wsservice.Connection, callback string) {
	switch st := s.state.Load(); st {
	case wsservice.Connecting, wsservice.Closed:
		s.suite.violation(conn.ID(), callback+".state", fmt.Sprintf("message delivered in state %s", st))
	}
}

// describeParams renders the connection's query parameters as
// "<sorted keys> and <sorted values>", each list comma-joined.
func (s *Service) describeParams(conn wsservice.Connection) string {
	ctx, cancel := s.suite.storeContext()
	defer cancel()

	id := s.id.Get()
	params, ok := s.suite.params.Lookup(ctx, id)
	if !ok {
		var err error
		params, err = s.suite.params.GetOrExtract(ctx, id, requestURI(conn))
		if err != nil {
			s.suite.storeFailure(id, "receivedText.params", err)
		}
	}

	return strings.Join(params.Keys(), ",") + " and " + strings.Join(params.Values(), ",")
}

func requestURI(conn wsservice.Connection) string {
	req := conn.Request()
	if req == nil || req.URL() == nil {
		return ""
	}

	return req.URL().RequestURI()
}
