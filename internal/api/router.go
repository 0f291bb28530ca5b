package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"talentCorner/internal/api/middleware"
	"talentCorner/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎：健康检查、受保护的 /metrics 与 /api 业务路由。
func NewRouter(deps Dependencies, logger *slog.Logger) *gin.Engine {
	registerValidators()

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware("/health", "/metrics"),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", middleware.InternalSecretMiddleware(deps.InternalSecret), gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router.Group("/api"), deps)
	return router
}
