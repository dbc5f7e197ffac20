package model

import "time"

type RequestStatus string

const (
	RequestStatusReturned RequestStatus = "returned"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusFailed   RequestStatus = "failed"
)

// AIRequestRecord is the append-only audit entry written once per request,
// on every terminal transition including rejects and failures.
type AIRequestRecord struct {
	RequestID  string        `json:"request_id"`
	UserID     string        `json:"user_id"`
	Feature    string        `json:"feature"`
	EntityID   string        `json:"entity_id"`
	Status     RequestStatus `json:"status"`
	CacheHit   bool          `json:"cache_hit"`
	Confidence int           `json:"confidence"`
	LatencyMs  int64         `json:"latency_ms"`
	ErrorKind  *string       `json:"error_kind,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Feedback records a thumbs up/down against a prior response. The positive
// ratio per feature feeds back into confidence scoring.
type Feedback struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Helpful   bool      `json:"helpful"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
