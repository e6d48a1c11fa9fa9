package sse

import (
	"bufio"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// Hub broadcasts status events (model list refreshed, active model changed)
// to every open /events connection. The latest event of each name is
// replayed to clients that connect later.
type Hub struct {
	clients sync.Map
	mu      sync.Mutex
	latest  map[string]Event
	order   []string
}

func NewHub() *Hub {
	return &Hub{latest: map[string]Event{}}
}

type listener struct {
	id string
	ch chan Event
}

// Send queues e for every connected client. Clients whose buffer is full
// miss the event.
func (h *Hub) Send(e Event) {
	h.mu.Lock()
	if _, ok := h.latest[e.Name]; !ok {
		h.order = append(h.order, e.Name)
	}
	h.latest[e.Name] = e
	h.mu.Unlock()

	h.clients.Range(func(_, value any) bool {
		l := value.(*listener)
		select {
		case l.ch <- e:
		default:
		}
		return true
	})
}

// Clients lists the ids of the connected clients.
func (h *Hub) Clients() []string {
	var ids []string
	h.clients.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

func (h *Hub) replay() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	events := make([]Event, 0, len(h.order))
	for _, name := range h.order {
		events = append(events, h.latest[name])
	}
	return events
}

// Handle serves one client until it disconnects or the server stops.
func (h *Hub) Handle(c *fiber.Ctx) error {
	l := &listener{id: uuid.NewString(), ch: make(chan Event, 50)}
	for _, e := range h.replay() {
		l.ch <- e
	}
	h.clients.Store(l.id, l)

	setHeaders(c)
	ctx := c.Context()
	ctx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.clients.Delete(l.id)

		w.WriteString("event: connected\ndata: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case e := <-l.ch:
				if _, err := w.WriteString(e.String()); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}))
	return nil
}
