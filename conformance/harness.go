package conformance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/cyberinferno/wsconformance/logger"
	"github.com/cyberinferno/wsconformance/wsclient"
	"github.com/cyberinferno/wsconformance/wsserver"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// settlePollInterval is how often Settle checks for unfinished connections.
const settlePollInterval = 10 * time.Millisecond

// Message is one data message a Scenario sends. A non-nil Binary sends a
// binary message; otherwise Text is sent as a text message.
type Message struct {
	Text   string
	Binary []byte
}

// Text returns a text Message.
func Text(s string) Message {
	return Message{Text: s}
}

// Binary returns a binary Message.
func Binary(b []byte) Message {
	return Message{Binary: b}
}

// Scenario is one client connection's script: connect, send Messages, wait
// for replies and pings, then end the connection.
type Scenario struct {
	// Path is appended to the server path (e.g. "/room").
	Path string
	// Query is the raw query string, without the leading '?'.
	Query string
	// Messages are sent in order once connected.
	Messages []Message
	// ExpectReplies is how many data messages to wait for; 0 waits for none.
	ExpectReplies int
	// ExpectPings is how many pings to wait for.
	ExpectPings int
	// ServerCloses waits for the server to end the connection instead of
	// closing it from the client.
	ServerCloses bool
	// ClientCloseCode is sent when the client closes; zero means Normal.
	ClientCloseCode closecode.Code
}

// Echo returns a Scenario that sends each text and waits for one reply per
// message before closing normally.
func Echo(texts ...string) Scenario {
	msgs := make([]Message, 0, len(texts))
	for _, t := range texts {
		msgs = append(msgs, Text(t))
	}

	return Scenario{Messages: msgs, ExpectReplies: len(msgs)}
}

// Result is what the client observed during a Scenario.
type Result struct {
	// ConnectionID is the ID the runtime assigned, from the handshake response.
	ConnectionID string
	// Replies holds every data message received, in order.
	Replies []wsclient.MessageEvent
	// Pings holds the payload of every ping received, in order.
	Pings []string
	// CloseCode is the close code the client observed.
	CloseCode closecode.Code
}

// Texts returns the payloads of the text replies.
func (r Result) Texts() []string {
	var texts []string
	for _, m := range r.Replies {
		if m.Type == wsclient.Text {
			texts = append(texts, string(m.Data))
		}
	}

	return texts
}

// Harness runs Scenarios against a wsserver.Server hosting a Suite's
// services. It is safe for concurrent use once started.
type Harness struct {
	suite  *Suite
	server *wsserver.Server
	log    logger.Logger
}

// NewHarness creates a Harness whose server hosts suite.
//
// Parameters:
//   - suite: The services under test and the state they record
//   - config: Server settings (e.g. wsserver.DefaultConfig("127.0.0.1:0"))
//   - log: Logger for server and client events; nil for a no-op logger
//   - reg: Prometheus registerer for server metrics; nil disables metrics
//
// Returns:
//   - The new *Harness
//   - An error if the server cannot be created
func NewHarness(suite *Suite, config wsserver.Config, log logger.Logger, reg prometheus.Registerer) (*Harness, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	server, err := wsserver.NewServer(config, suite.NewService, log, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to create harness server: %w", err)
	}

	return &Harness{suite: suite, server: server, log: log}, nil
}

// Start starts the server.
func (h *Harness) Start() error {
	return h.server.Start()
}

// Stop stops the server, closing any remaining connections.
func (h *Harness) Stop(ctx context.Context) error {
	return h.server.Stop(ctx)
}

// Suite returns the suite the harness hosts.
func (h *Harness) Suite() *Suite {
	return h.suite
}

// Server returns the underlying server.
func (h *Harness) Server() *wsserver.Server {
	return h.server
}

// URL returns the server URL for path and query.
//
// Parameters:
//   - path: Appended to the server path; may be empty
//   - query: Raw query string without '?'; may be empty
func (h *Harness) URL(path, query string) string {
	u := h.server.URL() + path
	if query != "" {
		u += "?" + query
	}

	return u
}

// Run executes one Scenario and returns what the client observed. The
// server side may still be finishing when Run returns; call Settle before
// reading the suite's logs.
//
// Parameters:
//   - ctx: Bounds the whole scenario
//   - sc: The scenario to run
//
// Returns:
//   - The Result, partially filled if an error occurred after connecting
//   - An error if connecting, sending or waiting failed
func (h *Harness) Run(ctx context.Context, sc Scenario) (Result, error) {
	client := wsclient.NewClient(wsclient.DefaultConfig(h.URL(sc.Path, sc.Query)), h.log)
	if err := client.Connect(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Abort() }()

	err := h.drive(ctx, client, sc)
	res := collect(client)
	if err != nil {
		return res, fmt.Errorf("scenario on %s failed: %w", res.ConnectionID, err)
	}

	return res, nil
}

func (h *Harness) drive(ctx context.Context, client *wsclient.Client, sc Scenario) error {
	for i, m := range sc.Messages {
		var err error
		if m.Binary != nil {
			err = client.SendBinary(m.Binary)
		} else {
			err = client.SendText(m.Text)
		}

		if err != nil {
			return fmt.Errorf("failed to send message %d: %w", i, err)
		}
	}

	if err := client.WaitMessages(ctx, sc.ExpectReplies); err != nil {
		return fmt.Errorf("waiting for %d replies: %w", sc.ExpectReplies, err)
	}

	if err := client.WaitPings(ctx, sc.ExpectPings); err != nil {
		return fmt.Errorf("waiting for %d pings: %w", sc.ExpectPings, err)
	}

	if !sc.ServerCloses {
		code := sc.ClientCloseCode
		if code == 0 {
			code = closecode.Normal
		}

		if err := client.Close(code, ""); err != nil && !errors.Is(err, wsclient.ErrNotConnected) {
			return fmt.Errorf("failed to close: %w", err)
		}
	}

	if err := client.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for the connection to end: %w", err)
	}

	return nil
}

func collect(client *wsclient.Client) Result {
	res := Result{
		ConnectionID: client.ConnectionID(),
		Replies:      client.Messages(),
	}

	for _, p := range client.Pings() {
		res.Pings = append(res.Pings, string(p.Payload))
	}

	if code, ok := client.CloseCode(); ok {
		res.CloseCode = code
	}

	return res
}

// RunConcurrent runs n copies of sc in parallel. The first error cancels
// the others.
//
// Parameters:
//   - ctx: Bounds every scenario
//   - n: Number of concurrent connections
//   - sc: The scenario each connection runs
//
// Returns:
//   - One Result per connection, in start order
//   - The first error encountered, if any
func (h *Harness) RunConcurrent(ctx context.Context, n int, sc Scenario) ([]Result, error) {
	results := make([]Result, n)
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := h.Run(ctx, sc)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

// Settle waits until every connection the server accepted has finished,
// including its Disconnected callback, and every scheduled request recheck
// has run.
//
// Parameters:
//   - ctx: Bounds the wait
//
// Returns:
//   - ctx.Err() if the server did not settle in time
func (h *Harness) Settle(ctx context.Context) error {
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	for h.server.Pending() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%d connections still pending: %w", h.server.Pending(), ctx.Err())
		}
	}

	return h.suite.Wait(ctx)
}

// Failures returns every failure the suite recorded.
func (h *Harness) Failures() []Failure {
	return h.suite.Failures()
}

// Report renders the recorded failures one per line, or "" if there are none.
func (h *Harness) Report() string {
	failures := h.suite.Failures()
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, f.Error())
	}

	return strings.Join(lines, "\n")
}
