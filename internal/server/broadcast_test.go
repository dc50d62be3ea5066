package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dialTest(t *testing.T, b *Broadcaster) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(b)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial failed: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForClients(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, b.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastDeliversJSON(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	conn, cleanup := dialTest(t, b)
	defer cleanup()

	waitForClients(t, b, 1)

	sent := map[string]any{"rms": 0.5, "peak": 0.75}
	b.Broadcast(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]float64
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got["rms"] != 0.5 || got["peak"] != 0.75 {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestBroadcastDropsDeadClients(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	conn, cleanup := dialTest(t, b)
	defer cleanup()

	waitForClients(t, b, 1)
	conn.Close()

	// The write path notices the closed connection and evicts it.
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 0 {
		b.Broadcast(map[string]int{"n": 1})
		if time.Now().After(deadline) {
			t.Fatalf("dead client never evicted, count %d", b.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseDuringBroadcast(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	_, cleanup := dialTest(t, b)
	defer cleanup()

	waitForClients(t, b, 1)

	// Broadcast and Close race over the same connection; the websocket
	// library panics if both issue data writes concurrently.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.Broadcast(map[string]int{"n": i})
		}
	}()
	b.Close()
	<-done

	if b.ClientCount() != 0 {
		t.Fatalf("expected no clients after close, have %d", b.ClientCount())
	}
}

func TestCloseRejectsNewClients(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.Close()

	conn, cleanup := dialTest(t, b)
	defer cleanup()

	// The server accepts the upgrade but closes immediately.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("closed broadcaster must keep no clients, has %d", b.ClientCount())
	}
}
