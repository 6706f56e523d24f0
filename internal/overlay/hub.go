package overlay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/jarvis/internal/observe"
)

// sendBuffer is the number of events queued per client before new events
// are dropped for that client.
const sendBuffer = 64

type client struct {
	id    uint64
	codec Codec
	send  chan []byte
}

// Hub broadcasts events to every connected overlay. It never blocks on a
// slow client: a full queue drops the event for that client only.
type Hub struct {
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	nextID  uint64
}

// NewHub returns an empty hub. m may be nil.
func NewHub(m *observe.Metrics) *Hub {
	return &Hub{metrics: m, clients: make(map[*client]struct{})}
}

// Publish encodes event once per codec in use and queues it for every
// client.
func (h *Hub) Publish(event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	encoded := make(map[Codec][]byte, 2)
	for c := range h.clients {
		msg, ok := encoded[c.codec]
		if !ok {
			var err error
			msg, err = Encode(c.codec, event, payload)
			if err != nil {
				slog.Error("overlay: dropping unencodable event", "event", event, "err", err)
				return
			}
			encoded[c.codec] = msg
		}
		h.enqueue(c, event, msg)
	}
}

// sendTo queues event for one client.
func (h *Hub) sendTo(c *client, event string, payload any) {
	msg, err := Encode(c.codec, event, payload)
	if err != nil {
		slog.Error("overlay: dropping unencodable event", "event", event, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.enqueue(c, event, msg)
	}
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *client, event string, msg []byte) {
	select {
	case c.send <- msg:
	default:
		slog.Debug("overlay: client queue full, event dropped", "client", c.id, "event", event)
		if h.metrics != nil {
			h.metrics.RecordDropped(context.Background(), "overlay")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(codec Codec) *client {
	h.mu.Lock()
	h.nextID++
	c := &client{id: h.nextID, codec: codec, send: make(chan []byte, sendBuffer)}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.OverlayClients.Add(context.Background(), 1)
	}
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.OverlayClients.Add(context.Background(), -1)
	}
}
