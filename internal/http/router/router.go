package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/internal/http/handler"
	"basegraph.app/concierge/internal/http/handler/webhook"
	"basegraph.app/concierge/internal/http/middleware"
	"basegraph.app/concierge/internal/mapper"
	"basegraph.app/concierge/internal/service"
)

type RouterConfig struct {
	GitHubWebhookSecret string
	GitLabWebhookSecret string
	IngestToken         string
	TraceHeaderName     string
}

// SetupRoutes mounts a webhook route per provider with a configured secret and
// the canonical ingest route when a token is set.
func SetupRoutes(router *gin.Engine, ingest service.EventIngestService, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	hooks := router.Group("/webhooks")
	if cfg.GitHubWebhookSecret != "" {
		h := webhook.NewGitHubWebhookHandler(cfg.GitHubWebhookSecret, ingest, mapper.NewGitHubEventMapper(), cfg.TraceHeaderName)
		WebhookRouter(hooks.Group("/github"), h.HandleEvent)
	}
	if cfg.GitLabWebhookSecret != "" {
		h := webhook.NewGitLabWebhookHandler(cfg.GitLabWebhookSecret, ingest, mapper.NewGitLabEventMapper(), cfg.TraceHeaderName)
		WebhookRouter(hooks.Group("/gitlab"), h.HandleEvent)
	}

	if cfg.IngestToken != "" {
		v1 := router.Group("/api/v1", middleware.BearerToken(cfg.IngestToken))
		EventRouter(v1.Group("/events"), handler.NewEventIngestHandler(ingest, cfg.TraceHeaderName))
	}
}
