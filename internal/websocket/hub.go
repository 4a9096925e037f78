package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/events"
)

// Subscription represents a client subscription to a topic
type Subscription struct {
	Client *Client
	Topic  string
}

// Hub maintains the set of active clients and fans pool events out to them.
type Hub struct {
	// Registered clients
	Clients map[*Client]bool

	// Register requests from the clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Subscribe requests from clients
	Subscribe chan *Subscription

	// Unsubscribe requests from clients
	Unsubscribe chan *Subscription

	// Topic subscriptions: topic -> clients
	Subscriptions map[string]map[*Client]bool

	Stats ConnectionStats

	mu       sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
	log      *logrus.Entry
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		Clients:       make(map[*Client]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Subscribe:     make(chan *Subscription),
		Unsubscribe:   make(chan *Subscription),
		Subscriptions: make(map[string]map[*Client]bool),
		stop:          make(chan struct{}),
		Stats:         ConnectionStats{LastUpdate: time.Now()},
		log:           logrus.WithField("component", "ws-hub"),
	}
}

// Run handles client lifecycle requests until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.mu.Lock()
			h.removeClientLocked(client)
			h.mu.Unlock()
		case sub := <-h.Subscribe:
			h.subscribeClient(sub)
		case sub := <-h.Unsubscribe:
			h.unsubscribeClient(sub)
		case <-h.stop:
			return
		}
	}
}

// send delivers a request to the run loop unless the hub has stopped.
func send[T any](h *Hub, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.stop:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Clients[client] = true
	h.Stats.TotalConnections++
	h.Stats.ActiveConnections++
	h.Stats.LastUpdate = time.Now()

	h.log.WithFields(logrus.Fields{"client": client.ID, "active": h.Stats.ActiveConnections}).Debug("client registered")
}

// removeClientLocked is the only place a client's Send channel is closed.
func (h *Hub) removeClientLocked(client *Client) {
	if _, ok := h.Clients[client]; !ok {
		return
	}
	delete(h.Clients, client)
	close(client.Send)
	h.Stats.ActiveConnections--
	h.Stats.LastUpdate = time.Now()

	for topic, clients := range h.Subscriptions {
		if _, subscribed := clients[client]; subscribed {
			delete(clients, client)
			h.Stats.TotalSubscriptions--
			if len(clients) == 0 {
				delete(h.Subscriptions, topic)
			}
		}
	}

	h.log.WithFields(logrus.Fields{"client": client.ID, "active": h.Stats.ActiveConnections}).Debug("client unregistered")
}

func (h *Hub) subscribeClient(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Clients[sub.Client]; !ok {
		return
	}
	if h.Subscriptions[sub.Topic] == nil {
		h.Subscriptions[sub.Topic] = make(map[*Client]bool)
	}
	if !h.Subscriptions[sub.Topic][sub.Client] {
		h.Subscriptions[sub.Topic][sub.Client] = true
		h.Stats.TotalSubscriptions++
		h.Stats.LastUpdate = time.Now()
	}
}

func (h *Hub) unsubscribeClient(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.Subscriptions[sub.Topic]; exists {
		if _, subscribed := clients[sub.Client]; subscribed {
			delete(clients, sub.Client)
			h.Stats.TotalSubscriptions--
			h.Stats.LastUpdate = time.Now()
			if len(clients) == 0 {
				delete(h.Subscriptions, sub.Topic)
			}
		}
	}
}

// BroadcastToTopic sends message to every client subscribed to topic. Clients
// whose buffers are full are disconnected.
func (h *Hub) BroadcastToTopic(topic string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.WithError(err).WithField("topic", topic).Error("marshal broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var sent, dropped int64
	for client := range h.Subscriptions[topic] {
		select {
		case client.Send <- data:
			sent++
		default:
			dropped++
			h.removeClientLocked(client)
		}
	}
	if sent > 0 || dropped > 0 {
		h.Stats.MessagesSent += sent
		h.Stats.MessagesDropped += dropped
		h.Stats.LastUpdate = time.Now()
	}
}

// Publish routes a committed pool event to its subscribers.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	pool := event.Address()
	switch event.Type {
	case events.TypeTradeExecuted:
		msg := Message{Type: MessageTypeTrade, Topic: string(TopicTrades), Pool: pool, Data: event.Trade, Timestamp: event.Timestamp}
		h.BroadcastToTopic(TopicKey(TopicTrades, pool), msg)
		h.BroadcastToTopic(TopicKey(TopicTrades, ""), msg)
	case events.TypePoolUpdated, events.TypePoolClosed:
		msgType := MessageTypePoolUpdate
		if event.Type == events.TypePoolClosed {
			msgType = MessageTypePoolClosed
		}
		msg := Message{Type: msgType, Topic: string(TopicPools), Pool: pool, Data: event.Pool, Timestamp: event.Timestamp}
		h.BroadcastToTopic(TopicKey(TopicPools, pool), msg)
		h.BroadcastToTopic(TopicKey(TopicPools, ""), msg)
	}
	return nil
}

// GetStats returns current connection statistics
func (h *Hub) GetStats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Stats
}

// GetClientCount returns the number of active clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients)
}

// GetSubscriptionCount returns the total number of subscriptions
func (h *Hub) GetSubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.Subscriptions {
		count += len(clients)
	}
	return count
}

// Stop stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)

		h.mu.Lock()
		for client := range h.Clients {
			h.removeClientLocked(client)
		}
		h.mu.Unlock()
	})
}

// deliver sends a direct reply to one client if it is still registered.
func (h *Hub) deliver(client *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Clients[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
		h.Stats.MessagesSent++
	default:
		h.Stats.MessagesDropped++
	}
}
