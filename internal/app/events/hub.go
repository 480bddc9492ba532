// Package events fans marketplace notifications out to connected UI
// clients. The hub is in-process; websocket delivery is best effort and a
// slow client never blocks a publisher.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

// Event types published by the services.
const (
	TypeJobPosted       = "job_posted"
	TypeJobClaimed      = "job_claimed"
	TypeJobCompleted    = "job_completed"
	TypeJobDisputed     = "job_disputed"
	TypePaymentReleased = "payment_released"
)

// Event is one notification. Address identifies the party the event
// primarily concerns (the poster for disputes, the collector for payments).
type Event struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id,omitempty"`
	Address   string    `json:"address,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the write side of the hub. Services hold this interface so
// tests can substitute a recorder.
type Publisher interface {
	Publish(ev Event)
}

// Hub broadcasts events to websocket subscribers.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
	closed  bool
}

var _ Publisher = (*Hub)(nil)

// NewHub creates an event hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Demo deployment serves the UI from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan Event),
	}
}

// Publish delivers the event to every connected client. Clients whose
// buffers are full miss the event rather than stalling the caller.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.log.WithField("remote", conn.RemoteAddr().String()).Warn("event dropped for slow client")
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	ch := make(chan Event, 16)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Drain incoming frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for conn, ch := range h.clients {
		close(ch)
		conn.Close()
		delete(h.clients, conn)
	}
}
