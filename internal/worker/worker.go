package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dealsense.app/coach/internal/queue"
)

// Invalidator drops cached responses for a CRM entity. Satisfied by the
// response cache.
type Invalidator interface {
	InvalidateEntity(entityID string) int
}

type Config struct {
	MaxAttempts int
}

// Worker consumes CRM entity change events. With an Invalidator it drops
// cached AI responses touching the entity; with a DealIngestor it indexes
// closed deals into the vector collection. The server process runs an
// invalidation-only worker against its own consumer group, the worker
// process runs ingest against the shared group. Either role may be nil.
type Worker struct {
	consumer    *queue.RedisConsumer
	invalidator Invalidator
	ingestor    *DealIngestor
	cfg         Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, invalidator Invalidator, ingestor *DealIngestor, cfg Config) *Worker {
	return &Worker{
		consumer:    consumer,
		invalidator: invalidator,
		ingestor:    ingestor,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"entity_id", msg.EntityID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"entity_id", msg.EntityID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	slog.InfoContext(ctx, "processing entity event",
		"message_id", msg.ID,
		"entity_type", msg.EntityType,
		"entity_id", msg.EntityID,
		"change_type", msg.ChangeType,
		"attempt", msg.Attempt)

	// Any change to an entity makes cached responses about it stale.
	if w.invalidator != nil {
		dropped := w.invalidator.InvalidateEntity(msg.EntityID)
		if dropped > 0 {
			slog.InfoContext(ctx, "invalidated cached responses",
				"entity_id", msg.EntityID,
				"count", dropped)
		}
	}

	if w.ingestor != nil && msg.EntityType == queue.EntityTypeDeal && msg.ChangeType == queue.ChangeTypeClosed {
		if err := w.ingestor.IngestClosedDeal(ctx, msg.EntityID); err != nil {
			return fmt.Errorf("ingesting closed deal: %w", err)
		}
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Message will be redelivered; invalidation and ingest are idempotent.
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}

	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"entity_id", msg.EntityID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"entity_id", msg.EntityID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
