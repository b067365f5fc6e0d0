package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/internal/mapper"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service"
)

const githubSignatureHeader = "X-Hub-Signature-256"

type GitHubWebhookHandler struct {
	secret      []byte
	eventIngest service.EventIngestService
	mapper      mapper.EventMapper
	traceHeader string
}

func NewGitHubWebhookHandler(secret string, eventIngest service.EventIngestService, mapper mapper.EventMapper, traceHeader string) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		secret:      []byte(secret),
		eventIngest: eventIngest,
		mapper:      mapper,
		traceHeader: traceHeader,
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := readBody(c)
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	signature := c.GetHeader(githubSignatureHeader)
	if signature == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing signature"})
		return
	}
	if !VerifySignature(h.secret, body, signature) {
		slog.WarnContext(ctx, "github webhook signature mismatch", "delivery_id", c.GetHeader("X-GitHub-Delivery"))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	if c.GetHeader("X-GitHub-Event") == "ping" {
		c.JSON(http.StatusOK, gin.H{"status": "pong"})
		return
	}

	mapAndIngest(c, model.ProviderGitHub, h.mapper, h.eventIngest, h.traceHeader, body)
}

// VerifySignature checks a "sha256=<hex>" HMAC of body. An empty secret never
// verifies.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return subtle.ConstantTimeCompare(got, mac.Sum(nil)) == 1
}
