package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// Client represents a WebSocket client connection
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Hub           *Hub
	Send          chan []byte
	Subscriptions map[string]bool
	mu            sync.RWMutex
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, id string) *Client {
	return &Client{
		ID:            id,
		Conn:          conn,
		Hub:           hub,
		Send:          make(chan []byte, 256),
		Subscriptions: make(map[string]bool),
	}
}

// ReadPump pumps subscription requests from the connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		send(c.Hub, c.Hub.Unregister, c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithError(err).WithField("client", c.ID).Warn("websocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid message format", http.StatusBadRequest)
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		c.handleSubscription(msg.Type, msg.Topic, msg.Pool)
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong, Timestamp: time.Now()})
	default:
		c.sendError("unknown message type", http.StatusBadRequest)
	}
}

func (c *Client) handleSubscription(action MessageType, topic, pool string) {
	switch SubscriptionTopic(topic) {
	case TopicPools, TopicTrades:
	default:
		c.sendError("invalid subscription topic", http.StatusBadRequest)
		return
	}

	key := TopicKey(SubscriptionTopic(topic), pool)
	sub := &Subscription{Client: c, Topic: key}

	c.mu.Lock()
	if action == MessageTypeSubscribe {
		c.Subscriptions[key] = true
	} else {
		delete(c.Subscriptions, key)
	}
	c.mu.Unlock()

	if action == MessageTypeSubscribe {
		send(c.Hub, c.Hub.Subscribe, sub)
	} else {
		send(c.Hub, c.Hub.Unsubscribe, sub)
	}
	c.reply(Message{Type: action, Topic: topic, Pool: pool, Timestamp: time.Now()})
}

func (c *Client) sendError(errorMsg string, code int) {
	c.reply(ErrorMessage{Type: MessageTypeError, Error: errorMsg, Code: code, Timestamp: time.Now()})
}

func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Hub.deliver(c, data)
}

// IsSubscribed checks if the client is subscribed to a topic key
func (c *Client) IsSubscribed(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[key]
}
