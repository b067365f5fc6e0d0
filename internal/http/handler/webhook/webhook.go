package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/concierge/internal/mapper"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service"
)

// GitHub caps webhook payloads at 25 MB.
const maxPayloadBytes = 25 << 20

var errPayloadTooLarge = errors.New("payload too large")

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return nil, errPayloadTooLarge
	}
	return body, nil
}

func headersOf(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return headers
}

func traceID(ctx context.Context, c *gin.Context, traceHeader string) string {
	if traceHeader != "" {
		if v := c.GetHeader(traceHeader); v != "" {
			return v
		}
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// mapAndIngest is shared by both providers once the request is authenticated.
func mapAndIngest(c *gin.Context, provider model.Provider, m mapper.EventMapper, ingest service.EventIngestService, traceHeader string, body []byte) {
	ctx := c.Request.Context()

	ev, err := m.Map(ctx, body, headersOf(c.Request))
	if err != nil {
		if errors.Is(err, mapper.ErrUnsupportedEvent) {
			slog.DebugContext(ctx, "ignoring webhook", "provider", provider, "reason", err)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		slog.WarnContext(ctx, "invalid webhook payload", "provider", provider, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ev.TraceID = traceID(ctx, c, traceHeader)

	result, err := ingest.Ingest(ctx, ev)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to ingest webhook",
			"error", err,
			"provider", provider,
			"issue", ev.Issue.Ref.String())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	slog.InfoContext(ctx, "webhook processed",
		"provider", provider,
		"event_type", ev.Type,
		"issue", ev.Issue.Ref.String(),
		"enqueued", result.Enqueued,
		"duplicated", result.Duplicated)

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"enqueued":   result.Enqueued,
		"duplicated": result.Duplicated,
	})
}
