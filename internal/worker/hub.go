package worker

import (
	"sync"

	"github.com/gorilla/websocket"

	"corsair/internal/domain"
)

// Hub tracks connected push-channel clients by wallet and delivers job
// completion notifications to them.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]string
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]string)}
}

// Register attaches a connection to a wallet.
func (h *Hub) Register(conn *websocket.Conn, wallet string) {
	h.mu.Lock()
	h.conns[conn] = wallet
	h.mu.Unlock()
}

// Unregister drops a connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Push delivers a notification to every connection of the wallet.
// Dead connections are dropped.
func (h *Hub) Push(wallet string, n domain.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, w := range h.conns {
		if w != wallet {
			continue
		}
		if err := conn.WriteJSON(n); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Connections returns the number of attached clients.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
