package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"dealsense.app/coach/internal/http/dto"
	"dealsense.app/coach/internal/queue"
)

// EventHandler receives entity change notifications from the CRM write path
// and forwards them onto the event stream.
type EventHandler struct {
	producer queue.Producer
}

func NewEventHandler(producer queue.Producer) *EventHandler {
	return &EventHandler{producer: producer}
}

func (h *EventHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := queue.EntityEvent{
		EntityType: queue.EntityType(req.EntityType),
		EntityID:   req.EntityID,
		ChangeType: queue.ChangeType(req.ChangeType),
		Stage:      req.Stage,
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		traceID := spanCtx.TraceID().String()
		event.TraceID = &traceID
	}

	if err := h.producer.Enqueue(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue entity event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue event"})
		return
	}

	c.JSON(http.StatusAccepted, dto.IngestEventResponse{Enqueued: true})
}
