package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phillip/haojiu-go/auth"
	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2048
	sendBuffer     = 64
)

// request is what a client may send after connecting.
type request struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Topic  string `json:"topic"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	sess *auth.Session
	send chan []byte

	mu     sync.Mutex
	topics map[string]bool
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, sess *auth.Session) *client {
	return &client{
		hub:    h,
		conn:   conn,
		sess:   sess,
		send:   make(chan []byte, sendBuffer),
		topics: map[string]bool{},
	}
}

func (c *client) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *client) addTopic(topic string) {
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
}

func (c *client) removeTopic(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// push queues msg for this client only.
func (c *client) push(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		logger.Error.Printf("[live] encode %s: %v", msg.Topic, err)
		return
	}
	c.enqueue(b)
}

// enqueue never blocks. A full buffer drops the frame.
func (c *client) enqueue(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		metrics.LiveDropped.Inc()
	}
}

// close ends the write pump, which closes the socket.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug.Printf("[live] read from %s: %v", c.conn.RemoteAddr(), err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.push(Message{Type: TypeError, Error: "invalid request"})
			continue
		}
		switch req.Action {
		case "subscribe":
			c.hub.subscribe(c, req.Topic)
		case "unsubscribe":
			c.removeTopic(req.Topic)
		default:
			c.push(Message{Type: TypeError, Topic: req.Topic, Error: "unknown action " + req.Action})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug.Printf("[live] write to %s: %v", c.conn.RemoteAddr(), err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
