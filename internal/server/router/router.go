package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(measurements *handlers.MeasurementHandler, goals *handlers.GoalHandler, analytics *handlers.AnalyticsHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	api := r.Group("/api/v1")
	{
		subject := api.Group("/subjects/:subject")

		subject.POST("/measurements", measurements.Append)
		subject.GET("/measurements", measurements.History)
		subject.GET("/measurements/latest", measurements.Latest)
		subject.PATCH("/measurements/:id", measurements.Edit)
		subject.DELETE("/measurements/:id", measurements.Delete)
		subject.POST("/measurements/:id/restore", measurements.Restore)

		subject.POST("/goals", goals.Create)
		subject.GET("/goals", goals.List)
		subject.POST("/goals/:id/cancel", goals.Cancel)
		subject.POST("/goals/:id/pause", goals.Pause)
		subject.POST("/goals/:id/resume", goals.Resume)

		subject.GET("/trend", analytics.Trend)
		subject.GET("/outliers", analytics.Outliers)
		subject.GET("/statistics", analytics.Statistics)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
