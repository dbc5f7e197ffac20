package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	userHeader               = "X-User-ID"
	userContextKey contextKey = "user_id"
)

// RequireUser resolves the calling CRM user from the gateway-forwarded
// header. The CRM front door authenticates; this service only needs the
// identity for quotas and audit.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + userHeader + " header"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), userContextKey, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userContextKey).(string)
	return userID
}

// Recovery converts panics into 500 responses instead of dropped
// connections.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(c.Request.Context(), "panic recovered in http handler",
					"panic", r,
					"path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// Logger emits one access log line per request with trace context attached
// by the slog handler.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= 500:
			slog.ErrorContext(c.Request.Context(), "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(c.Request.Context(), "request rejected", attrs...)
		default:
			slog.InfoContext(c.Request.Context(), "request completed", attrs...)
		}
	}
}
