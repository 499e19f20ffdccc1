package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Conn is the minimal write side of a websocket connection. The concrete
// type in production is *websocket.Conn behind a write-serializing
// wrapper; tests substitute an in-memory fake.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// Subscriber is one attached prediction-stream client.
type Subscriber struct {
	ID   string
	conn Conn
}

// Hub fans prediction payloads out to all attached subscribers. A failed
// write detaches the subscriber; slow clients never block the others
// beyond their own write call.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]*Subscriber)}
}

// Subscribe attaches a connection and returns its subscriber handle.
func (h *Hub) Subscribe(conn Conn) *Subscriber {
	sub := &Subscriber{ID: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	log.Debug().Str("subscriber", sub.ID).Msg("prediction stream subscriber attached")
	return sub
}

// Unsubscribe detaches and closes a subscriber. Idempotent.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if ok {
		_ = sub.conn.Close()
		log.Debug().Str("subscriber", id).Msg("prediction stream subscriber detached")
	}
}

// Count returns the number of attached subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Send marshals a payload to one subscriber. A write failure detaches it.
func (h *Hub) Send(id string, payload any) error {
	h.mu.RLock()
	sub, ok := h.subscribers[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := sub.conn.WriteMessage(data); err != nil {
		h.Unsubscribe(id)
		return err
	}
	return nil
}

// Broadcast marshals a payload once and writes it to every subscriber,
// detaching any whose write fails. Returns the number of failed writes.
func (h *Hub) Broadcast(payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("broadcast payload not marshalable")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	failed := 0
	for _, sub := range targets {
		if err := sub.conn.WriteMessage(data); err != nil {
			failed++
			h.Unsubscribe(sub.ID)
			log.Warn().Err(err).Str("subscriber", sub.ID).Msg("dropping unresponsive subscriber")
		}
	}
	return failed
}
