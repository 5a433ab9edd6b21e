package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const broadcastBuffer = 64

type outbound struct {
	data    []byte
	payload json.RawMessage
	history bool
}

// Hub maintains the set of active clients and fans events out to them.
// Clients and history are owned by the Run goroutine.
type Hub struct {
	clients     map[*Client]struct{}
	broadcast   chan outbound
	register    chan *Client
	unregister  chan *Client
	done        chan struct{}
	history     []json.RawMessage
	historySize int
	connected   atomic.Int64
	logger      zerolog.Logger
}

// NewHub constructs a hub that replays the last historySize sensor updates
// to newly connected clients.
func NewHub(historySize int, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		broadcast:   make(chan outbound, broadcastBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		historySize: historySize,
		logger:      logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connected.Add(1)
			h.logger.Debug().Str("remote", client.remote).Msg("client registered")
			if snapshot := h.historyMessage(); snapshot != nil {
				select {
				case client.send <- snapshot:
				default:
				}
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug().Str("remote", client.remote).Msg("client unregistered")
			}

		case msg := <-h.broadcast:
			if msg.history {
				h.remember(msg.payload)
			}
			for client := range h.clients {
				select {
				case client.send <- msg.data:
				default:
					h.logger.Warn().Str("remote", client.remote).Msg("client send buffer full, removing")
					h.drop(client)
				}
			}
		}
	}
}

// Broadcast queues an event for every connected client. It drops the event
// when the hub has stopped.
func (h *Hub) Broadcast(event Event) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event payload")
		return
	}
	data, err := json.Marshal(struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{event.Type, payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	select {
	case h.broadcast <- outbound{data: data, payload: payload, history: event.Type == TypeSensorUpdate}:
	case <-h.done:
	}
}

// Seed preloads history, oldest first. Call before Run.
func (h *Hub) Seed(events []Event) {
	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			continue
		}
		h.remember(payload)
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

func (h *Hub) remember(payload json.RawMessage) {
	if h.historySize <= 0 {
		return
	}
	if len(h.history) >= h.historySize {
		h.history = h.history[1:]
	}
	h.history = append(h.history, payload)
}

func (h *Hub) historyMessage() []byte {
	if len(h.history) == 0 {
		return nil
	}
	data, err := json.Marshal(struct {
		Type    string            `json:"type"`
		Payload []json.RawMessage `json:"payload"`
	}{TypeHistory, h.history})
	if err != nil {
		return nil
	}
	return data
}
