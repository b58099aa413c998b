package websocket

import (
	"encoding/json"
	"log/slog"

	"absence-api/internal/event"
	"absence-api/internal/model"
)

// Hub fans workflow events out to connected clients. Delivery respects
// visibility: the owner of an absence and the dean office hear about it,
// nobody else does.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	bus        event.Bus
	done       chan struct{}
}

func NewHub(bus event.Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		bus:        bus,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case e := <-events:
			message, err := json.Marshal(e)
			if err != nil {
				slog.Error("failed to marshal event", "error", err)
				continue
			}
			for client := range h.clients {
				if !h.visible(e, client.actor) {
					continue
				}
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) visible(e event.Event, actor model.Actor) bool {
	if actor.Is(model.RoleDeanOffice) {
		return true
	}
	return e.ActorID != "" && e.ActorID == actor.ID
}
