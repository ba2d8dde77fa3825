package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/synthos/mint-engine/internal/metrics"
)

// wsPair upgrades one WebSocket connection against a test server and
// returns both ends.
func wsPair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverSide:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of connection never arrived")
	}
	return client, server
}

func hubClients(h *WSHub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// A connection whose transport died is removed by the broadcast loop.
// The client gauge must follow the removal, and the read pump's later
// unregister of the same connection must not decrement it again.
func TestWSHub_WriteErrorDisconnect(t *testing.T) {
	h := NewWSHub()
	go h.Run()

	base := testutil.ToFloat64(metrics.WebSocketClients)

	goodClient, goodServer := wsPair(t)
	_, deadServer := wsPair(t)

	h.register <- goodServer
	h.register <- deadServer
	waitFor(t, "both clients registered", func() bool {
		return hubClients(h) == 2 && testutil.ToFloat64(metrics.WebSocketClients) == base+2
	})

	// Kill the transport so the next broadcast write fails.
	deadServer.NetConn().Close()

	h.Publish(context.Background(), PositionEvent{Action: "mint"})

	waitFor(t, "dead client removal", func() bool { return hubClients(h) == 1 })
	if got := testutil.ToFloat64(metrics.WebSocketClients); got != base+1 {
		t.Fatalf("client gauge after write failure = %v, want %v", got, base+1)
	}

	// The healthy client still receives the event.
	goodClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := goodClient.ReadMessage()
	if err != nil {
		t.Fatalf("healthy client read: %v", err)
	}
	if !strings.Contains(string(msg), `"action":"mint"`) {
		t.Fatalf("broadcast payload = %s, want action mint", msg)
	}

	// The read pump reports the dead connection after broadcast has
	// already removed it; the gauge must not drop twice.
	h.unregister <- deadServer
	h.unregister <- goodServer
	waitFor(t, "remaining client unregistered", func() bool { return hubClients(h) == 0 })
	if got := testutil.ToFloat64(metrics.WebSocketClients); got != base {
		t.Fatalf("client gauge after unregister = %v, want %v", got, base)
	}
}
