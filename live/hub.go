// Package live pushes committed store changes to WebSocket subscribers and
// runs optimistic commands whose predictions are confirmed or reverted.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phillip/haojiu-go/auth"
	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/metrics"
	"github.com/phillip/haojiu-go/store"
)

const (
	TypeSnapshot   = "snapshot"
	TypeChange     = "change"
	TypeDelete     = "delete"
	TypeOptimistic = "optimistic"
	TypeConfirmed  = "confirmed"
	TypeRevert     = "revert"
	TypeError      = "error"
)

// Message is the frame sent to subscribers.
type Message struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

var watched = []string{store.Events, store.Challenges, store.Messages, store.Users, store.Notifications}

type Hub struct {
	store    store.Store
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
	unsubs  []func()
}

// NewHub accepts upgrades from the given origins. An empty list allows any.
func NewHub(s store.Store, origins []string) *Hub {
	allowed := map[string]bool{}
	for _, o := range origins {
		allowed[o] = true
	}
	return &Hub{
		store:   s,
		clients: map[*client]bool{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Start subscribes to the store's change feed.
func (h *Hub) Start(ctx context.Context) error {
	for _, coll := range watched {
		stop, err := h.store.Subscribe(ctx, coll, h.onChange)
		if err != nil {
			h.Close()
			return fmt.Errorf("subscribe %s: %w", coll, err)
		}
		h.mu.Lock()
		h.unsubs = append(h.unsubs, stop)
		h.mu.Unlock()
	}
	return nil
}

// Close stops the change feed and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	clients := h.clients
	h.clients = map[*client]bool{}
	h.mu.Unlock()

	for _, stop := range unsubs {
		stop()
	}
	for c := range clients {
		metrics.LiveSubscribers.Dec()
		c.close()
	}
}

func (h *Hub) onChange(ch store.Change) {
	topics, data, err := routeChange(ch)
	if err != nil {
		logger.Warn.Printf("[live] decode %s/%s: %v", ch.Collection, ch.ID, err)
		return
	}
	typ := TypeChange
	if ch.Op == store.OpDelete {
		typ = TypeDelete
	}
	for _, t := range topics {
		h.Publish(Message{Type: typ, Topic: t, ID: ch.ID, Data: data})
	}
}

// Publish sends msg to every subscriber of msg.Topic. Slow subscribers
// miss the message instead of blocking the caller.
func (h *Hub) Publish(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		logger.Error.Printf("[live] encode %s: %v", msg.Topic, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(msg.Topic) {
			c.enqueue(b)
		}
	}
}

// Serve upgrades the request and subscribes the socket to topics. Topics
// the session may not watch fail the request before the upgrade.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sess *auth.Session, topics []string) error {
	for _, t := range topics {
		if err := authorize(sess, t); err != nil {
			return err
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warn.Printf("[live] upgrade from %s: %v", r.RemoteAddr, err)
		return nil
	}

	c := newClient(h, conn, sess)
	h.register(c)
	go c.writePump()
	for _, t := range topics {
		h.subscribe(c, t)
	}
	go c.readPump()
	return nil
}

func (h *Hub) subscribe(c *client, topic string) {
	if err := authorize(c.sess, topic); err != nil {
		c.push(Message{Type: TypeError, Topic: topic, Error: err.Error()})
		return
	}
	c.addTopic(topic)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := snapshot(ctx, h.store, topic)
	if err != nil {
		c.push(Message{Type: TypeError, Topic: topic, Error: err.Error()})
		return
	}
	_, id := splitTopic(topic)
	c.push(Message{Type: TypeSnapshot, Topic: topic, ID: id, Data: data})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	metrics.LiveSubscribers.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		metrics.LiveSubscribers.Dec()
		c.close()
	}
}

// EndSession disconnects every socket opened with the session. Wired to
// auth sign-out.
func (h *Hub) EndSession(sessionID string) {
	h.mu.RLock()
	var gone []*client
	for c := range h.clients {
		if c.sess != nil && c.sess.ID == sessionID {
			gone = append(gone, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range gone {
		h.unregister(c)
	}
}

// OnAuthStateChange adapts EndSession to auth listeners.
func (h *Hub) OnAuthStateChange(ch auth.StateChange) {
	if !ch.SignedIn && ch.Session != nil {
		h.EndSession(ch.Session.ID)
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
