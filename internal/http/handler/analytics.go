package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealsense.app/coach/internal/ai"
	"dealsense.app/coach/internal/analytics"
	"dealsense.app/coach/internal/http/dto"
	"dealsense.app/coach/internal/http/middleware"
	"dealsense.app/coach/internal/model"
)

type AnalyticsHandler struct {
	service *analytics.Service
}

func NewAnalyticsHandler(service *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

func (h *AnalyticsHandler) Usage(c *gin.Context) {
	ctx := c.Request.Context()

	period, err := analytics.ParsePeriod(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorEnvelope(string(ai.KindValidationError), err.Error()))
		return
	}

	summary, err := h.service.Usage(ctx, middleware.GetUserID(ctx), period)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load usage summary", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorEnvelope("internal_error", "failed to load usage"))
		return
	}

	c.JSON(http.StatusOK, dto.Envelope{
		Success: true,
		Data: dto.UsageResponse{
			Period:        string(period),
			TotalRequests: summary.TotalRequests,
			CacheHits:     summary.CacheHits,
			AvgConfidence: summary.AvgConfidence,
			AvgLatencyMs:  summary.AvgLatencyMs,
			ByFeature:     summary.ByFeature,
			ErrorsByKind:  summary.ErrorsByKind,
		},
	})
}

func (h *AnalyticsHandler) SubmitFeedback(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, dto.ErrorEnvelope(string(ai.KindValidationError), err.Error()))
		return
	}

	fb := &model.Feedback{
		RequestID: req.RequestID,
		UserID:    middleware.GetUserID(ctx),
		Helpful:   *req.Helpful,
		Comment:   req.Comment,
	}
	if err := h.service.SubmitFeedback(ctx, fb); err != nil {
		slog.ErrorContext(ctx, "failed to record feedback", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorEnvelope("internal_error", "failed to record feedback"))
		return
	}

	c.JSON(http.StatusCreated, dto.Envelope{Success: true})
}
