package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/common/logger"
)

// Recovery turns a handler panic into a 500. Webhook senders retry on 5xx, so
// a panicking delivery is redelivered rather than lost.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
					Component: "concierge.http.recovery",
				})

				slog.ErrorContext(ctx, "panic recovered",
					"error", err,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"delivery_id", deliveryID(c),
					"stack", string(debug.Stack()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
