package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/metrics"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(config.RealtimeConfig{MaxMessageSize: 512}, metrics.NewRecorder(prometheus.NewRegistry()), logger)
	go hub.Run()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, scope string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Scope: scope}))
	ack := readMessage(t, conn)
	require.Equal(t, MessageTypeSubscribed, ack.Type)
}

func TestHub_BroadcastReachesScopeSubscribers(t *testing.T) {
	hub, srv := startHub(t)
	overall := dial(t, srv)
	catA := dial(t, srv)
	subscribe(t, overall, "overall")
	subscribe(t, catA, "a")

	hub.BroadcastRanking(&domain.Ranking{Scope: domain.CategoryScope(domain.CategoryA), Entries: []domain.RankingEntry{{Rank: 1, UserID: "ana", Points: 20}}})
	hub.BroadcastRanking(&domain.Ranking{Scope: domain.ScopeOverall})

	msg := readMessage(t, catA)
	assert.Equal(t, MessageTypeRankingUpdate, msg.Type)
	assert.Equal(t, domain.CategoryScope(domain.CategoryA), msg.Scope)
	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var ranking domain.Ranking
	require.NoError(t, json.Unmarshal(raw, &ranking))
	require.Len(t, ranking.Entries, 1)
	assert.Equal(t, 20, ranking.Entries[0].Points)

	msg = readMessage(t, overall)
	assert.Equal(t, domain.ScopeOverall, msg.Scope, "overall subscriber skips category updates")
}

func TestHub_RejectsUnknownScope(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Scope: "Z"}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
}

func TestHub_Ping(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))

	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	subscribe(t, conn, "B")
	require.Equal(t, 1, hub.SubscriberCount(domain.CategoryScope(domain.CategoryB)))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return hub.TotalConnections() == 0 && hub.SubscriberCount(domain.CategoryScope(domain.CategoryB)) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(config.RealtimeConfig{}, nil, logger)

	for i := 0; i < 1000; i++ {
		hub.BroadcastRanking(&domain.Ranking{Scope: domain.ScopeOverall})
	}
	hub.BroadcastRanking(nil)
}

func TestHub_StopReleasesGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(config.RealtimeConfig{}, nil, logger)
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()
	srv := httptest.NewServer(hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	subscribe(t, conn, "overall")

	hub.Stop()
	<-done
	conn.Close()
	srv.Close()
}
