// Package router wires the papercite HTTP routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/papercite/papercite/internal/papercite/handler"
	"github.com/papercite/papercite/internal/papercite/metrics"
	"github.com/papercite/papercite/internal/pkg/middleware"
)

// New builds the gin engine with middleware and all service routes.
func New(h *handler.Handler) *gin.Engine {
	logger.Info("Registering papercite routes...")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.AccessLog("/healthz", "/metrics"),
		middleware.Recovery(),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, metrics.GetMetrics().Export("papercite", "service"))
	})

	v1 := engine.Group("/v1")
	{
		docs := v1.Group("/documents")
		{
			docs.POST("", h.UploadDocument)
			docs.PUT("/:id", h.PutDocument)
			docs.DELETE("/:id", h.DeleteDocument)
			docs.GET("", h.ListDocuments)
		}

		v1.POST("/ask", h.Ask)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
	return engine
}
