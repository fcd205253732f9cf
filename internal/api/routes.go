package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.Use(cors.Default())

	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.POST("/search", handler.Search)
		api.POST("/polygons/refresh", handler.RefreshPolygons)
		api.POST("/prefetch", handler.StartPrefetch)
		api.GET("/prefetch/:id", handler.GetPrefetchJob)
		api.GET("/prefetch/:id/events", handler.StreamPrefetchJob)
		api.POST("/cache/listings/clear", handler.ClearListingsCache)
		api.POST("/cache/isochrones/clear", handler.ClearIsochroneCache)
	}
}
