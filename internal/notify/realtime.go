package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/reviewtrust/internal/models"
	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventLowRatingAlert EventType = "low_rating_alert"
	EventNewReview      EventType = "new_review"
)

// Subscriber streams realtime events for one business.
type Subscriber interface {
	Subscribe(ctx context.Context, businessID string) (<-chan []byte, error)
}

// Event is the envelope written to a business channel.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

func AlertsChannel(businessID string) string {
	return "business:" + businessID + ":alerts"
}

func ReviewsChannel(businessID string) string {
	return "business:" + businessID + ":reviews"
}

func encodeEvent(kind EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return json.Marshal(Event{Type: kind, Payload: raw, SentAt: time.Now().UTC()})
}

// RedisChannel fans events out to every API instance through Redis pub/sub.
type RedisChannel struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisChannel(client *redis.Client, logger *slog.Logger) *RedisChannel {
	return &RedisChannel{client: client, logger: logger}
}

func (rc *RedisChannel) PublishLowRatingAlert(ctx context.Context, businessID string, payload models.AlertEvent) error {
	return rc.publish(ctx, AlertsChannel(businessID), EventLowRatingAlert, payload)
}

func (rc *RedisChannel) PublishNewReviewNotification(ctx context.Context, businessID string, payload models.ReviewNotification) error {
	return rc.publish(ctx, ReviewsChannel(businessID), EventNewReview, payload)
}

func (rc *RedisChannel) publish(ctx context.Context, channel string, kind EventType, payload any) error {
	data, err := encodeEvent(kind, payload)
	if err != nil {
		return err
	}
	receivers, err := rc.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	rc.logger.Debug("Realtime event published", "channel", channel, "type", kind, "receivers", receivers)
	return nil
}

// Subscribe streams raw events for one business until ctx is cancelled.
// The returned channel is closed when the subscription ends.
func (rc *RedisChannel) Subscribe(ctx context.Context, businessID string) (<-chan []byte, error) {
	pubsub := rc.client.Subscribe(ctx, AlertsChannel(businessID), ReviewsChannel(businessID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to business %s: %w", businessID, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
