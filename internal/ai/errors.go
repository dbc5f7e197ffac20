package ai

import (
	"errors"
	"fmt"

	"dealsense.app/coach/internal/moderation"
)

// Kind classifies a pipeline failure. Kinds map one-to-one onto API error
// codes and onto the error_kind column of the audit trail.
type Kind string

const (
	KindRateLimitExceeded      Kind = "rate_limit_exceeded"
	KindRateLimiterUnavailable Kind = "rate_limiter_unavailable"
	KindContentRejected        Kind = "content_rejected"
	KindUpstreamServiceError   Kind = "upstream_service_error"
	KindValidationError        Kind = "validation_error"
	KindNotEligible            Kind = "not_eligible"
	KindNotFound               Kind = "not_found"
)

// Error is the pipeline's failure type. Every terminal error leaving the
// orchestrator is one of these.
type Error struct {
	Kind    Kind
	Message string

	// Set for content rejections.
	ReasonCode string
	Severity   moderation.Severity
	Categories []string

	// Set for rate-limit denials.
	Limit     int
	Remaining int

	// Set for upstream failures.
	Dependency string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewRateLimited(limit, remaining int) *Error {
	return &Error{
		Kind:      KindRateLimitExceeded,
		Message:   "daily AI request limit reached",
		Limit:     limit,
		Remaining: remaining,
	}
}

func NewLimiterUnavailable(err error) *Error {
	return &Error{
		Kind:       KindRateLimiterUnavailable,
		Message:    "rate limit storage unavailable",
		Dependency: "redis",
		Err:        err,
	}
}

func NewContentRejected(verdict moderation.Verdict) *Error {
	return &Error{
		Kind:       KindContentRejected,
		Message:    "content failed moderation",
		ReasonCode: verdict.ReasonCode,
		Severity:   verdict.Severity,
		Categories: verdict.Categories,
	}
}

func NewUpstream(dependency string, err error) *Error {
	return &Error{
		Kind:       KindUpstreamServiceError,
		Message:    "upstream service failed",
		Dependency: dependency,
		Err:        err,
	}
}

func NewValidation(message string) *Error {
	return &Error{Kind: KindValidationError, Message: message}
}

func NewNotEligible(message string) *Error {
	return &Error{Kind: KindNotEligible, Message: message}
}

func NewNotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// KindOf extracts the Kind from err, or empty when err is not a pipeline
// error.
func KindOf(err error) Kind {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return ""
}
