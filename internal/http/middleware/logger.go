package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

var deliveryHeaders = []string{"X-GitHub-Delivery", "X-Gitlab-Event-UUID"}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if id := deliveryID(c); id != "" {
			attrs = append(attrs, "delivery_id", id)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}

func deliveryID(c *gin.Context) string {
	for _, h := range deliveryHeaders {
		if v := c.GetHeader(h); v != "" {
			return v
		}
	}
	return ""
}
