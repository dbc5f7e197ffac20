package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dealsense.app/coach/common/logger"
	"dealsense.app/coach/internal/model"
	"dealsense.app/coach/internal/store"
)

// Period is a supported usage window.
type Period string

const (
	PeriodDay   Period = "1d"
	PeriodWeek  Period = "7d"
	PeriodMonth Period = "30d"
)

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	case "":
		return PeriodWeek, nil
	}
	return "", fmt.Errorf("unknown period %q, expected 1d, 7d or 30d", s)
}

func (p Period) Duration() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Service reads the audit trail and feedback for reporting, and records new
// feedback. It also backs the scoring accuracy source.
type Service struct {
	audit    store.AuditStore
	feedback store.FeedbackStore
}

func New(audit store.AuditStore, feedback store.FeedbackStore) *Service {
	return &Service{audit: audit, feedback: feedback}
}

func (s *Service) Usage(ctx context.Context, userID string, period Period) (*store.UsageSummary, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    &userID,
		Component: "coach.analytics",
	})

	since := time.Now().Add(-period.Duration())
	summary, err := s.audit.UsageSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("loading usage: %w", err)
	}

	slog.DebugContext(ctx, "usage summary built",
		"period", period,
		"total_requests", summary.TotalRequests)
	return summary, nil
}

func (s *Service) SubmitFeedback(ctx context.Context, fb *model.Feedback) error {
	if strings.TrimSpace(fb.RequestID) == "" {
		return fmt.Errorf("request id is required")
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}

	if err := s.feedback.Create(ctx, fb); err != nil {
		return fmt.Errorf("saving feedback: %w", err)
	}

	slog.InfoContext(ctx, "feedback recorded",
		"request_id", fb.RequestID,
		"helpful", fb.Helpful)
	return nil
}

// FeatureAccuracy satisfies the scoring accuracy source.
func (s *Service) FeatureAccuracy(ctx context.Context, feature string) (float64, bool, error) {
	return s.feedback.PositiveRatio(ctx, feature)
}
