package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	RedisWebhookEventKeyPrefix = "webhook:event:"

	// Providers retry failed deliveries for up to three days.
	webhookEventTTL = 72 * time.Hour
)

// EventDedupeService remembers payment events that were processed to the end.
// Events are marked only after success so a failed attempt can be redelivered.
type EventDedupeService struct {
	redisClient *redis.Client
}

func NewEventDedupeService(redisClient *redis.Client) *EventDedupeService {
	return &EventDedupeService{redisClient: redisClient}
}

func (s *EventDedupeService) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, RedisWebhookEventKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (s *EventDedupeService) MarkProcessed(ctx context.Context, eventID string) error {
	if err := s.redisClient.Set(ctx, RedisWebhookEventKeyPrefix+eventID, "1", webhookEventTTL).Err(); err != nil {
		return fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return nil
}
