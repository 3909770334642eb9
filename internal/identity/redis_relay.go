package identity

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

const defaultChannel = "auth:events"

type envelope struct {
	SessionID string           `json:"session_id"`
	Event     Event            `json:"event"`
	Session   *session.Session `json:"session,omitempty"`
}

// RedisRelay publishes auth events on a Redis channel so that every
// service instance can deliver them to its local Hub.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	channel string
}

func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, channel: defaultChannel}
}

func (r *RedisRelay) Publish(ctx context.Context, sessionID string, event Event, sess *session.Session) error {
	data, err := json.Marshal(envelope{SessionID: sessionID, Event: event, Session: sess})
	if err != nil {
		return fmt.Errorf("identity: marshal event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run delivers relayed events to the local hub until ctx is done.
// ready, if non-nil, is closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("identity: subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("dropping malformed auth event", map[string]any{
					"error": err.Error(),
				})
				continue
			}
			r.hub.Deliver(env.SessionID, env.Event, env.Session)
		}
	}
}
