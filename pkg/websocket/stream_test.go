package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	raws [][]byte
}

func (s *recordingSink) Ingest(_ context.Context, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raws = append(s.raws, raw)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.raws)
}

func newStreamServer(t *testing.T, cfg *Config, sink FixSink) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(cfg, sink)
	r := gin.New()
	r.GET("/location/stream", NewHandler(hub).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/location/stream"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHubIngestsFix(t *testing.T) {
	sink := &recordingSink{}
	hub, url := newStreamServer(t, nil, sink)
	conn := dial(t, url)

	body, _ := json.Marshal(Message{
		Type: MessageTypeFix,
		Data: json.RawMessage(`{"latitude":22.5726,"longitude":88.3639}`),
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	assert.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastReachesClients(t *testing.T) {
	hub, url := newStreamServer(t, nil, nil)
	a := dial(t, url)
	b := dial(t, url)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(MessageTypeLocation, map[string]float64{"latitude": 1, "longitude": 2})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeLocation, msg.Type)
		assert.Contains(t, string(msg.Data), `"latitude":1`)
	}
}

func TestHubPingPong(t *testing.T) {
	_, url := newStreamServer(t, nil, nil)
	conn := dial(t, url)

	body, _ := json.Marshal(Message{Type: MessageTypePing})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestHubRejectsUnknownType(t *testing.T) {
	_, url := newStreamServer(t, nil, nil)
	conn := dial(t, url)

	body, _ := json.Marshal(Message{Type: "chat"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
}

func TestHubMaxConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	hub, url := newStreamServer(t, cfg, nil)

	dial(t, url)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	over := dial(t, url)
	require.NoError(t, over.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := over.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, int64(1), hub.ClientCount())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.HeartbeatInterval = cfg.ConnectionTimeout
	assert.Error(t, cfg.Validate())
}
