package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 进度事件状态。
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
	StatusDone   = "done"
)

// Event is the websocket frame describing one step of a notification campaign.
// Field names are what the dashboard parses.
type Event struct {
	Type          string `json:"type"`
	Campaign      string `json:"campaign"`
	Status        string `json:"status"`
	RecipientID   uint   `json:"recipient_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Sent          int    `json:"sent"`
	Failed        int    `json:"failed"`
	Total         int    `json:"total"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ErrorCode     int    `json:"error_code,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Publisher fans progress events out to an organization's websocket sessions.
type Publisher interface {
	Publish(ctx context.Context, orgKey string, ev Event) error
}

// ChannelFor returns the Redis channel carrying an organization's progress events.
func ChannelFor(orgKey string) string {
	return "notify_progress:" + orgKey
}

// RedisPublisher publishes events with Redis Pub/Sub and lets websocket sessions subscribe to them.
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, orgKey string, ev Event) error {
	if ev.Type == "" {
		ev.Type = "notify_progress"
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := p.client.Publish(ctx, ChannelFor(orgKey), payload).Err(); err != nil {
		return fmt.Errorf("publish progress event: %w", err)
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }

// Subscribe streams the raw event payloads published for orgKey until ctx ends or stop is called.
func (p *RedisPublisher) Subscribe(ctx context.Context, orgKey string) (<-chan []byte, func(), error) {
	pubsub := p.client.Subscribe(ctx, ChannelFor(orgKey))
	// 确认订阅成功后再返回，避免丢掉紧随其后的事件。
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", ChannelFor(orgKey), err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }, nil
}
