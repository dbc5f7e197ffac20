package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type EntityEvent struct {
	EntityType EntityType
	EntityID   string
	ChangeType ChangeType
	Stage      string
	TraceID    *string
	Attempt    int
}

type Producer interface {
	Enqueue(ctx context.Context, event EntityEvent) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, event EntityEvent) error {
	attempt := event.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"entity_type": string(event.EntityType),
		"entity_id":   event.EntityID,
		"change_type": string(event.ChangeType),
		"attempt":     attempt,
	}
	if event.Stage != "" {
		fields["stage"] = event.Stage
	}
	if event.TraceID != nil && *event.TraceID != "" {
		fields["trace_id"] = *event.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue entity event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued entity event", "entity_type", event.EntityType, "entity_id", event.EntityID, "change_type", event.ChangeType, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
