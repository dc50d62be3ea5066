// Package server streams analyzer emissions to local websocket clients so a
// browser meter or spectrum page can render them. It is a consumer of the
// analyzer callback like any other; no audio samples cross the socket.
package server

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Broadcaster fans each payload out to every connected websocket client.
// Writes are best-effort: a client that errors is dropped.
type Broadcaster struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	b := &Broadcaster{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
	b.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}
	return b
}

// checkOrigin admits same-origin, localhost and private-network viewers.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header.
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()

	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// ServeHTTP upgrades the connection and keeps it registered until the
// client goes away. Inbound messages are read and discarded to service
// control frames.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[conn] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	b.log.Debug().Str("remote", conn.RemoteAddr().String()).Int("clients", count).Msg("viewer connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.remove(conn)
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	_, ok := b.clients[conn]
	delete(b.clients, conn)
	b.mu.Unlock()
	conn.Close()
	if ok {
		b.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("viewer disconnected")
	}
}

// Broadcast writes v as JSON to every client, dropping clients whose write
// fails. Safe from any goroutine; never called on the real-time thread.
func (b *Broadcaster) Broadcast(v any) {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(v); err != nil {
			b.remove(c)
		}
	}
}

// ClientCount reports connected viewers.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects all clients and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c)
	}
	b.clients = make(map[*websocket.Conn]struct{})
	b.mu.Unlock()

	// WriteControl is safe alongside a Broadcast that still holds a
	// snapshot of these connections; WriteMessage is not.
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down")
	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage, msg, deadline)
		c.Close()
	}
}
