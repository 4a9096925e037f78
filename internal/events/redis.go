package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisPublisher publishes events on a redis channel so that every API
// instance can relay them to its own websocket clients.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, payload).Err()
}

// Relay forwards events received on channel to sink until ctx is cancelled.
func Relay(ctx context.Context, rdb *redis.Client, channel string, sink Sink) error {
	log := logrus.WithFields(logrus.Fields{"component": "events-relay", "channel": channel})
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info("relaying pool events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.WithError(err).Warn("dropping malformed event")
				continue
			}
			if err := sink.Publish(ctx, event); err != nil {
				log.WithError(err).Warn("relay publish failed")
			}
		}
	}
}
