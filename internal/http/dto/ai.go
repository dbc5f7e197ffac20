package dto

import (
	"net/http"

	"dealsense.app/coach/internal/ai"
)

// Every AI endpoint responds with the same envelope so CRM clients can
// handle success and failure uniformly.

type Meta struct {
	RequestID  string `json:"request_id"`
	CacheHit   bool   `json:"cache_hit"`
	Confidence int    `json:"confidence"`
	Degraded   bool   `json:"degraded,omitempty"`
}

type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	ReasonCode string   `json:"reason_code,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

type AIResponse struct {
	Text        string `json:"text"`
	ContextUsed int    `json:"context_used"`
	Model       string `json:"model,omitempty"`
}

func ToAIEnvelope(result *ai.Result) Envelope {
	return Envelope{
		Success: true,
		Data: AIResponse{
			Text:        result.Payload.Text,
			ContextUsed: result.Payload.ContextUsed,
			Model:       result.Payload.Model,
		},
		Meta: &Meta{
			RequestID:  result.RequestID,
			CacheHit:   result.CacheHit,
			Confidence: result.Payload.Confidence,
			Degraded:   result.Payload.Degraded,
		},
	}
}

func ErrorEnvelope(code, message string) Envelope {
	return Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	}
}

// StatusForKind maps pipeline error kinds onto HTTP statuses.
func StatusForKind(kind ai.Kind) int {
	switch kind {
	case ai.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case ai.KindRateLimiterUnavailable:
		return http.StatusServiceUnavailable
	case ai.KindContentRejected:
		return http.StatusUnprocessableEntity
	case ai.KindUpstreamServiceError:
		return http.StatusBadGateway
	case ai.KindValidationError:
		return http.StatusBadRequest
	case ai.KindNotEligible:
		return http.StatusConflict
	case ai.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func ToErrorEnvelope(err *ai.Error) Envelope {
	body := &ErrorBody{
		Code:    string(err.Kind),
		Message: err.Message,
	}
	if err.Kind == ai.KindContentRejected {
		body.ReasonCode = err.ReasonCode
		body.Categories = err.Categories
	}
	return Envelope{Success: false, Error: body}
}

type ObjectionRequest struct {
	DealID   string `json:"deal_id" binding:"required,max=64"`
	Text     string `json:"text" binding:"required,min=1,max=2000"`
	Category string `json:"category" binding:"omitempty,max=64"`
	Severity string `json:"severity" binding:"omitempty,oneof=low medium high"`
}

type FeedbackRequest struct {
	RequestID string  `json:"request_id" binding:"required,max=64"`
	Helpful   *bool   `json:"helpful" binding:"required"`
	Comment   *string `json:"comment,omitempty" binding:"omitempty,max=2000"`
}

type UsageResponse struct {
	Period        string           `json:"period"`
	TotalRequests int64            `json:"total_requests"`
	CacheHits     int64            `json:"cache_hits"`
	AvgConfidence float64          `json:"avg_confidence"`
	AvgLatencyMs  float64          `json:"avg_latency_ms"`
	ByFeature     map[string]int64 `json:"by_feature"`
	ErrorsByKind  map[string]int64 `json:"errors_by_kind"`
}
