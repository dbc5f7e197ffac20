package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the counter storage could not be read or written.
// Admission fails closed on this error: the caller must deny the request and
// surface a storage problem, never fall through to unlimited use.
var ErrUnavailable = errors.New("rate limit storage unavailable")

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
}

// Limiter enforces the per-user, per-calendar-day request quota.
// Admit increments the user's counter only when it returns Allowed.
// The day boundary uses server-local time; reset is lazy, evaluated on the
// next call after the stored day key goes stale.
type Limiter interface {
	Admit(ctx context.Context, userID string) (Decision, error)
}

// dayKey formats t as the calendar-day bucket for counter keys.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
