package journalsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dtecho/folio/internal/model"
)

// EventChannel is the pub/sub channel sync events are fanned out on.
const EventChannel = "folio:sync:events"

// RedisEventSink publishes sync events to a Redis channel so external
// subscribers can follow sync progress without polling the event table.
type RedisEventSink struct {
	client redis.UniversalClient
}

// NewRedisEventSink wraps a Redis client as an EventSink.
func NewRedisEventSink(client redis.UniversalClient) *RedisEventSink {
	return &RedisEventSink{client: client}
}

// Publish sends one event as JSON.
func (s *RedisEventSink) Publish(ctx context.Context, event model.SyncEvent) error {
	payload, err := json.Marshal(map[string]any{
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"event_type":  string(event.EventType),
		"payload":     event.Payload,
		"occurred_at": event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("journalsync: encode event: %w", err)
	}
	if err := s.client.Publish(ctx, EventChannel, payload).Err(); err != nil {
		return fmt.Errorf("journalsync: publish event: %w", err)
	}
	return nil
}
