package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dealsense.app/coach/internal/ai"
	"dealsense.app/coach/internal/http/dto"
	"dealsense.app/coach/internal/http/middleware"
)

// Pipeline runs one AI request to a terminal state.
type Pipeline interface {
	Handle(ctx context.Context, req ai.Request) (*ai.Result, error)
}

type AIHandler struct {
	pipeline Pipeline
}

func NewAIHandler(pipeline Pipeline) *AIHandler {
	return &AIHandler{pipeline: pipeline}
}

func (h *AIHandler) CoachDeal(c *gin.Context) {
	h.run(c, ai.Request{
		Feature:  ai.FeatureDealCoach,
		UserID:   middleware.GetUserID(c.Request.Context()),
		EntityID: c.Param("id"),
	})
}

func (h *AIHandler) HandleObjection(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ObjectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, dto.ErrorEnvelope(string(ai.KindValidationError), err.Error()))
		return
	}

	h.run(c, ai.Request{
		Feature:           ai.FeatureObjectionHandler,
		UserID:            middleware.GetUserID(ctx),
		EntityID:          req.DealID,
		ObjectionText:     req.Text,
		ObjectionCategory: req.Category,
		ObjectionSeverity: req.Severity,
	})
}

func (h *AIHandler) ContactPersona(c *gin.Context) {
	h.run(c, ai.Request{
		Feature:  ai.FeatureContactPersona,
		UserID:   middleware.GetUserID(c.Request.Context()),
		EntityID: c.Param("id"),
	})
}

func (h *AIHandler) ExplainDeal(c *gin.Context) {
	h.run(c, ai.Request{
		Feature:  ai.FeatureWinLossExplain,
		UserID:   middleware.GetUserID(c.Request.Context()),
		EntityID: c.Param("id"),
	})
}

func (h *AIHandler) run(c *gin.Context, req ai.Request) {
	result, err := h.pipeline.Handle(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(result.RateLimit.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.RateLimit.Remaining))
	c.JSON(http.StatusOK, dto.ToAIEnvelope(result))
}

func writeError(c *gin.Context, err error) {
	var aiErr *ai.Error
	if errors.As(err, &aiErr) {
		c.JSON(dto.StatusForKind(aiErr.Kind), dto.ToErrorEnvelope(aiErr))
		return
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorEnvelope("internal_error", "internal server error"))
}
