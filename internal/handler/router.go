package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semindex/internal/middleware"
)

type RouterDeps struct {
	Search          *SearchHandler
	Index           *IndexHandler
	Events          *EventHandler
	Settings        *SettingsHandler
	SearchRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	searchGroup := api.Group("/search")
	searchGroup.Use(middleware.RateLimit(deps.SearchRateLimit))
	searchGroup.GET("", deps.Search.Search)
	searchGroup.GET("/ids", deps.Search.MatchingIDs)

	api.POST("/index/pause", deps.Index.Pause)
	api.POST("/index/resume", deps.Index.Resume)
	api.GET("/index/status", deps.Index.Status)
	api.POST("/index/backfill", deps.Index.Backfill)

	api.POST("/events/uploaded", deps.Events.Uploaded)
	api.POST("/events/sync", deps.Events.Sync)

	api.GET("/settings", deps.Settings.Get)
	api.PUT("/settings", deps.Settings.Update)
}
