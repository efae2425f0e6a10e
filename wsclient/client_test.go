package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyberinferno/wsconformance/closecode"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// newTestServer upgrades every request, sets the ID header and hands the
// connection to handle.
func newTestServer(t *testing.T, handle func(ws *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, http.Header{"X-Connection-Id": []string{"conn-7"}})
		if err != nil {
			return
		}
		defer ws.Close()

		handle(ws)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echo replies to every data message until the peer closes.
func echo(ws *websocket.Conn) {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(messageType, data); err != nil {
			return
		}
	}
}

func connect(t *testing.T, url string) *Client {
	t.Helper()

	c := NewClient(DefaultConfig(url), nil)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Abort() })

	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Closed", Closed.String())
	assert.Equal(t, "Unknown", ConnectionState(99).String())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("ws://localhost:8080/ws")
	assert.Equal(t, "ws://localhost:8080/ws", cfg.URL)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "X-Connection-Id", cfg.IDHeader)
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := NewClient(DefaultConfig("ws://127.0.0.1:1/ws"), nil)

	assert.ErrorIs(t, c.SendText("x"), ErrNotConnected)
	assert.ErrorIs(t, c.Close(closecode.Normal, ""), ErrNotConnected)
	_, ok := c.CloseCode()
	assert.False(t, ok)
}

func TestClient_Echo(t *testing.T) {
	c := connect(t, newTestServer(t, echo))

	assert.True(t, c.IsConnected())
	assert.Equal(t, "conn-7", c.ConnectionID())

	require.NoError(t, c.SendText("hello"))
	require.NoError(t, c.SendBinary([]byte{0xCA, 0xFE}))
	require.NoError(t, c.WaitMessages(testContext(t), 2))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, Text, msgs[0].Type)
	assert.Equal(t, "hello", string(msgs[0].Data))
	assert.Equal(t, Binary, msgs[1].Type)
	assert.Equal(t, []byte{0xCA, 0xFE}, msgs[1].Data)
	assert.Equal(t, []string{"hello"}, c.Texts())
}

func TestClient_CloseHandshake(t *testing.T) {
	c := connect(t, newTestServer(t, echo))

	require.NoError(t, c.Close(closecode.Normal, "bye"))
	require.NoError(t, c.Wait(testContext(t)))

	code, ok := c.CloseCode()
	require.True(t, ok)
	assert.Equal(t, closecode.Normal, code)
	assert.Equal(t, Closed, c.GetState())

	t.Run("reconnect is rejected", func(t *testing.T) {
		assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
	})
}

func TestClient_CloseHandshakeReportsEchoedCode(t *testing.T) {
	userCode, err := closecode.UserDefined(4000)
	require.NoError(t, err)

	for _, code := range []closecode.Code{closecode.Normal, closecode.GoingAway, userCode} {
		t.Run(code.String(), func(t *testing.T) {
			c := connect(t, newTestServer(t, echo))

			var errs []error
			var mu sync.Mutex
			c.OnError(func(event ErrorEvent) {
				mu.Lock()
				errs = append(errs, event.Error)
				mu.Unlock()
			})

			require.NoError(t, c.Close(code, "bye"))
			require.NoError(t, c.Wait(testContext(t)))

			got, ok := c.CloseCode()
			require.True(t, ok)
			assert.Equal(t, code, got)

			mu.Lock()
			defer mu.Unlock()
			assert.Empty(t, errs, "a completed close handshake is not an error")
		})
	}
}

func TestClient_ServerClose(t *testing.T) {
	c := connect(t, newTestServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("close"))
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "Going away..."), time.Now().Add(time.Second))
		_, _, _ = ws.ReadMessage()
	}))

	require.NoError(t, c.Wait(testContext(t)))

	code, ok := c.CloseCode()
	require.True(t, ok)
	assert.Equal(t, closecode.GoingAway, code)
	assert.Equal(t, []string{"close"}, c.Texts())
}

func TestClient_ServerDrop(t *testing.T) {
	c := connect(t, newTestServer(t, func(ws *websocket.Conn) {
		_ = ws.UnderlyingConn().Close()
	}))

	require.NoError(t, c.Wait(testContext(t)))

	code, ok := c.CloseCode()
	require.True(t, ok)
	assert.Equal(t, closecode.AbnormalClosure, code)

	t.Run("wait on a closed client fails", func(t *testing.T) {
		assert.ErrorIs(t, c.WaitMessages(testContext(t), 1), ErrClientClosed)
	})
}

func TestClient_Pings(t *testing.T) {
	pongs := make(chan string, 2)
	c := connect(t, newTestServer(t, func(ws *websocket.Conn) {
		ws.SetPongHandler(func(appData string) error {
			pongs <- appData
			return nil
		})
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.PingMessage, nil, deadline)
		_ = ws.WriteControl(websocket.PingMessage, []byte("Hello"), deadline)
		echo(ws)
	}))

	var handled []string
	var mu sync.Mutex
	c.OnPing(func(event PingEvent) {
		mu.Lock()
		handled = append(handled, string(event.Payload))
		mu.Unlock()
	})

	require.NoError(t, c.WaitPings(testContext(t), 2))

	pings := c.Pings()
	require.Len(t, pings, 2)
	assert.Empty(t, pings[0].Payload)
	assert.Equal(t, "Hello", string(pings[1].Payload))

	// Pongs are read by the server's echo loop once it sees our next message.
	require.NoError(t, c.SendText("flush"))
	require.NoError(t, c.WaitMessages(testContext(t), 1))
	assert.Equal(t, "", <-pongs)
	assert.Equal(t, "Hello", <-pongs)
}

func TestClient_StateEvents(t *testing.T) {
	url := newTestServer(t, echo)
	c := NewClient(DefaultConfig(url), nil)

	var states []ConnectionState
	var mu sync.Mutex
	c.OnConnectionState(func(event ConnectionStateEvent) {
		mu.Lock()
		states = append(states, event.State)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(testContext(t)))
	require.NoError(t, c.Close(closecode.Normal, ""))
	require.NoError(t, c.Wait(testContext(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnectionState{Connecting, Connected, Closed}, states)
}

func TestClient_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	defer srv.Close()

	c := NewClient(DefaultConfig(url), nil)
	err := c.Connect(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, Closed, c.GetState())

	select {
	case <-c.Done():
	default:
		t.Fatal("done should be closed after a failed dial")
	}
}
