package router

import (
	"basegraph.app/concierge/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func EventRouter(router *gin.RouterGroup, handler *handler.EventIngestHandler) {
	router.POST("/ingest", handler.Ingest)
}
