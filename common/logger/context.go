package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Business context (request_id, feature, entity_id, etc.) flows
// through context enrichment so individual log statements stay minimal.
type LogFields struct {
	RequestID *string // AI request ID (snowflake, base58)
	UserID    *string // CRM user issuing the request
	Feature   *string // AI feature name (e.g., "deal_coach")
	EntityID  *string // Target entity (deal/contact/objection ID)
	MessageID *string // Redis stream message ID (worker only)
	Component string  // Component name, OTel style (e.g., "coach.ai.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.RequestID != nil {
		result.RequestID = next.RequestID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.Feature != nil {
		result.Feature = next.Feature
	}
	if next.EntityID != nil {
		result.EntityID = next.EntityID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}
