package webhook

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/concierge/internal/mapper"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service"
)

type GitLabWebhookHandler struct {
	secret      []byte
	eventIngest service.EventIngestService
	mapper      mapper.EventMapper
	traceHeader string
}

func NewGitLabWebhookHandler(secret string, eventIngest service.EventIngestService, mapper mapper.EventMapper, traceHeader string) *GitLabWebhookHandler {
	return &GitLabWebhookHandler{
		secret:      []byte(secret),
		eventIngest: eventIngest,
		mapper:      mapper,
		traceHeader: traceHeader,
	}
}

func (h *GitLabWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	token := c.GetHeader("X-Gitlab-Token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing webhook token"})
		return
	}
	if len(h.secret) == 0 || subtle.ConstantTimeCompare([]byte(token), h.secret) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	switch gitlab.HookEventType(c.Request) {
	case gitlab.EventTypeIssue, gitlab.EventConfidentialIssue, gitlab.EventTypeNote, gitlab.EventConfidentialNote:
	default:
		slog.DebugContext(ctx, "ignoring gitlab hook", "event_type", gitlab.HookEventType(c.Request))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	body, err := readBody(c)
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	mapAndIngest(c, model.ProviderGitLab, h.mapper, h.eventIngest, h.traceHeader, body)
}
