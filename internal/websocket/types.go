package websocket

import (
	"time"
)

// MessageType represents different types of WebSocket messages
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePoolUpdate  MessageType = "pool_update"
	MessageTypePoolClosed  MessageType = "pool_closed"
	MessageTypeTrade       MessageType = "trade"
	MessageTypeError       MessageType = "error"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// SubscriptionTopic represents different subscription topics
type SubscriptionTopic string

const (
	TopicPools  SubscriptionTopic = "pools"
	TopicTrades SubscriptionTopic = "trades"
)

// TopicKey is the hub key for a topic scoped to one pool. An empty pool
// subscribes to every pool.
func TopicKey(topic SubscriptionTopic, pool string) string {
	if pool == "" {
		return string(topic)
	}
	return string(topic) + ":" + pool
}

// Message represents a generic WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Pool      string      `json:"pool,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Type      MessageType `json:"type"`
	Error     string      `json:"error"`
	Code      int         `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionStats represents WebSocket connection statistics
type ConnectionStats struct {
	TotalConnections   int       `json:"total_connections"`
	ActiveConnections  int       `json:"active_connections"`
	TotalSubscriptions int       `json:"total_subscriptions"`
	MessagesSent       int64     `json:"messages_sent"`
	MessagesDropped    int64     `json:"messages_dropped"`
	LastUpdate         time.Time `json:"last_update"`
}
