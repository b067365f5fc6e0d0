package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/concierge/internal/http/dto"
	"basegraph.app/concierge/internal/service"
)

type EventIngestHandler struct {
	service     service.EventIngestService
	traceHeader string
}

func NewEventIngestHandler(service service.EventIngestService, traceHeader string) *EventIngestHandler {
	return &EventIngestHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

func (h *EventIngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := req.ToEvent()
	ev.TraceID = c.GetHeader(h.traceHeader)
	if ev.TraceID == "" {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			ev.TraceID = spanCtx.TraceID().String()
		}
	}

	result, err := h.service.Ingest(ctx, ev)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to ingest event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest event"})
		return
	}

	c.JSON(http.StatusAccepted, dto.IngestEventResponse{
		DedupeKey:  result.DedupeKey,
		Enqueued:   result.Enqueued,
		Duplicated: result.Duplicated,
	})
}
