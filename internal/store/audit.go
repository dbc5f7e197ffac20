package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealsense.app/coach/internal/model"
)

// UsageSummary aggregates the audit trail for one user over a window.
type UsageSummary struct {
	TotalRequests  int64              `json:"total_requests"`
	CacheHits      int64              `json:"cache_hits"`
	AvgConfidence  float64            `json:"avg_confidence"`
	AvgLatencyMs   float64            `json:"avg_latency_ms"`
	ByFeature      map[string]int64   `json:"by_feature"`
	ErrorsByKind   map[string]int64   `json:"errors_by_kind"`
}

type AuditStore interface {
	Record(ctx context.Context, rec *model.AIRequestRecord) error
	UsageSince(ctx context.Context, userID string, since time.Time) (*UsageSummary, error)
}

type auditStore struct {
	pool *pgxpool.Pool
}

func (s *auditStore) Record(ctx context.Context, rec *model.AIRequestRecord) error {
	const query = `
		INSERT INTO ai_request_records
			(request_id, user_id, feature, entity_id, status, cache_hit,
			 confidence, latency_ms, error_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		rec.RequestID, rec.UserID, rec.Feature, rec.EntityID, rec.Status,
		rec.CacheHit, rec.Confidence, rec.LatencyMs, rec.ErrorKind, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record ai request: %w", err)
	}
	return nil
}

func (s *auditStore) UsageSince(ctx context.Context, userID string, since time.Time) (*UsageSummary, error) {
	const totals = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE cache_hit),
		       COALESCE(AVG(confidence) FILTER (WHERE status = 'returned'), 0),
		       COALESCE(AVG(latency_ms), 0)
		FROM ai_request_records
		WHERE user_id = $1 AND created_at >= $2`

	summary := &UsageSummary{
		ByFeature:    make(map[string]int64),
		ErrorsByKind: make(map[string]int64),
	}
	err := s.pool.QueryRow(ctx, totals, userID, since).Scan(
		&summary.TotalRequests, &summary.CacheHits,
		&summary.AvgConfidence, &summary.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}

	const byFeature = `
		SELECT feature, COUNT(*)
		FROM ai_request_records
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY feature`

	rows, err := s.pool.Query(ctx, byFeature, userID, since)
	if err != nil {
		return nil, fmt.Errorf("usage by feature: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var feature string
		var count int64
		if err := rows.Scan(&feature, &count); err != nil {
			return nil, fmt.Errorf("scan feature count: %w", err)
		}
		summary.ByFeature[feature] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const byKind = `
		SELECT error_kind, COUNT(*)
		FROM ai_request_records
		WHERE user_id = $1 AND created_at >= $2 AND error_kind IS NOT NULL
		GROUP BY error_kind`

	rows, err = s.pool.Query(ctx, byKind, userID, since)
	if err != nil {
		return nil, fmt.Errorf("usage by error kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan error kind count: %w", err)
		}
		summary.ErrorsByKind[kind] = count
	}
	return summary, rows.Err()
}
