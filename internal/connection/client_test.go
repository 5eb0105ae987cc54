package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(server *httptest.Server) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = wsURL(server)
	cfg.BufferSize = 100
	return cfg
}

// drain reads until the server side exits.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func nextEvent(t *testing.T, c Client) ClientEvent {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return ClientEvent{}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)

	require.NoError(t, client.Connect(context.Background()))

	assert.True(t, client.IsConnected())
	assert.NoError(t, client.Close())
	assert.False(t, client.IsConnected(), "connected after Close")
}

func TestClient_ConnectSendsHeaders(t *testing.T) {
	gotAuth := make(chan string, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		drain(conn)
	}))
	defer server.Close()

	cfg := testClientConfig(server)
	cfg.Header = http.Header{"Authorization": []string{"Bearer abc"}}
	client := NewClient(cfg, nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	assert.Equal(t, "Bearer abc", <-gotAuth)
}

func TestClient_Send(t *testing.T) {
	received := make(chan []byte, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	testMsg := []byte(`{"type":"ping"}`)
	require.NoError(t, client.Send(testMsg))

	select {
	case got := <-received:
		assert.Equal(t, string(testMsg), string(got))
	case <-time.After(time.Second):
		t.Fatal("server did not receive message")
	}
}

func TestClient_Events(t *testing.T) {
	testMessages := []string{
		`{"type":"alert","data":{"id":"1"}}`,
		`{"type":"alert","data":{"id":"2"}}`,
		`{"type":"alert","data":{"id":"3"}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	for i, want := range testMessages {
		ev := nextEvent(t, client)
		require.Equal(t, EventMessage, ev.Kind, "event %d", i)
		assert.Equal(t, want, string(ev.Data), "message %d", i)
		assert.False(t, ev.ReceivedAt.IsZero(), "ReceivedAt unset")
	}
}

func TestClient_AbnormalCloseEmitsErrorThenClose(t *testing.T) {
	// Returning from the handler drops the TCP connection without a close frame.
	server := mockWSServer(t, func(conn *websocket.Conn) {})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	ev := nextEvent(t, client)
	require.Equal(t, EventError, ev.Kind)
	require.Error(t, ev.Err)
	require.Equal(t, EventClose, nextEvent(t, client).Kind)

	_, ok := <-client.Events()
	assert.False(t, ok, "events channel open after close event")
}

func TestClient_NormalCloseEmitsOnlyClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	assert.Equal(t, EventClose, nextEvent(t, client).Kind)
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:12345"}, nil)

	assert.ErrorIs(t, client.Send([]byte("test")), ErrNotConnected)
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:12345"}, nil)
	client.Close()

	assert.ErrorIs(t, client.Connect(context.Background()), ErrAlreadyClosed)
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	require.NoError(t, client.Connect(context.Background()))

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestClient_PingHandler(t *testing.T) {
	var mu sync.Mutex
	var pong string
	gotPong := make(chan struct{})

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.SetPongHandler(func(data string) error {
			mu.Lock()
			pong = data
			mu.Unlock()
			close(gotPong)
			return nil
		})
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		// Pong handlers run inside the read loop.
		drain(conn)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case <-gotPong:
	case <-time.After(time.Second):
		t.Fatal("no pong received")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "heartbeat", pong)
	assert.True(t, client.IsConnected(), "disconnected after ping")
}

func TestDefaultConfigs(t *testing.T) {
	assert.Equal(t, 10*time.Second, DefaultClientConfig().HandshakeTimeout)

	cfg := DefaultConfig()
	assert.True(t, cfg.Reconnect)
	assert.Equal(t, 3*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
}
