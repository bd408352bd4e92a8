package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mtutor/internal/middleware"
	"github.com/xxxsen/mtutor/internal/ratelimit"
)

type RouterDeps struct {
	Chat      *ChatHandler
	Documents *DocumentHandler
	Limiter   *ratelimit.Limiter
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.Use(middleware.RequestID(), middleware.OptionalJWTAuth(deps.JWTSecret))

	throttled := api.Group("")
	throttled.Use(middleware.RateLimit(deps.Limiter))
	throttled.POST("/chat", deps.Chat.Chat)
	throttled.GET("/search", deps.Chat.Search)

	api.GET("/ingest/stats", deps.Chat.IngestStats)

	if deps.Documents == nil {
		return
	}
	api.GET("/videos", deps.Documents.Videos)
	api.GET("/files/*key", deps.Documents.File)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/documents", deps.Documents.Create)
	admin.GET("/documents", deps.Documents.List)
	admin.GET("/documents/:id", deps.Documents.Get)
	admin.DELETE("/documents/:id", deps.Documents.Delete)
	admin.POST("/documents/:id/reingest", deps.Documents.Reingest)
}
