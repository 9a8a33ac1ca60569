package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-alerts/api/handlers"
	"github.com/feichai0017/document-alerts/api/middleware"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API 版本组
	v1 := r.Group("/api/v1")

	// 文档路由组
	docs := v1.Group("/documents")
	{
		docs.POST("", h.Document.Upload)
		docs.POST("/:id/analyze", h.Document.Analyze)
		docs.POST("/:id/enqueue", h.Document.Enqueue)
		docs.GET("/:id/report", h.Document.GetReport)
	}

	v1.GET("/analyses/:id", h.Document.GetAnalysis)

	// 告警路由组
	alerts := v1.Group("/alerts")
	{
		alerts.GET("", h.Alert.List)
		alerts.GET("/export", h.Alert.Export)
	}
}
