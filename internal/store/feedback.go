package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealsense.app/coach/internal/model"
)

type FeedbackStore interface {
	Create(ctx context.Context, fb *model.Feedback) error
	// PositiveRatio returns the helpful fraction of feedback for a feature.
	// ok is false when the feature has no feedback yet.
	PositiveRatio(ctx context.Context, feature string) (ratio float64, ok bool, err error)
}

type feedbackStore struct {
	pool *pgxpool.Pool
}

func (s *feedbackStore) Create(ctx context.Context, fb *model.Feedback) error {
	const query = `
		INSERT INTO ai_feedback (request_id, user_id, helpful, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		fb.RequestID, fb.UserID, fb.Helpful, fb.Comment, fb.CreatedAt,
	).Scan(&fb.ID)
	if err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

func (s *feedbackStore) PositiveRatio(ctx context.Context, feature string) (float64, bool, error) {
	const query = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE f.helpful)
		FROM ai_feedback f
		JOIN ai_request_records r ON r.request_id = f.request_id
		WHERE r.feature = $1`

	var total, helpful int64
	if err := s.pool.QueryRow(ctx, query, feature).Scan(&total, &helpful); err != nil {
		return 0, false, fmt.Errorf("feedback ratio: %w", err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(helpful) / float64(total), true, nil
}
