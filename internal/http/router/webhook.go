package router

import (
	"github.com/gin-gonic/gin"
)

func WebhookRouter(router *gin.RouterGroup, handle gin.HandlerFunc) {
	router.POST("", handle)
}
