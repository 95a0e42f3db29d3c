package api

import (
	"log/slog"
	"net/http"
	"time"

	"bq-tools/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type RouterConfig struct {
	// APIKey, when set, is required in the X-API-Key header on every route
	// except /health.
	APIKey string
}

func NewRouter(cfg RouterConfig, bqService *service.BigQueryService, wh Warehouse, driver service.ExportDriver) *gin.Engine {
	// Upload rows are untyped; float64 would round integers above 2^53.
	binding.EnableDecoderUseNumber = true

	r := gin.New() // skip the default logger; requestLogger replaces it
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders("X-API-Key")
	r.Use(cors.New(corsConfig))

	if cfg.APIKey != "" {
		r.Use(apiKeyAuth(cfg.APIKey))
	}
	r.Use(requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	g := r.Group("/api")
	g.POST("/query", QueryHandler(wh))
	g.POST("/upload", UploadHandler(wh))
	g.POST("/transfers/start", TransferHandler(wh))
	if driver != nil {
		g.POST("/export", ExportHandler(bqService, driver))
	}
	return r
}

func apiKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if raw != "" {
			attrs = append(attrs, slog.String("query", raw))
		}
		// Cloud Scheduler triggers carry the job name and schedule time.
		if jobName := c.GetHeader("X-CloudScheduler-JobName"); jobName != "" {
			attrs = append(attrs, slog.String("scheduler_job", jobName))
		}
		if scheduleTime := c.GetHeader("X-CloudScheduler-ScheduleTime"); scheduleTime != "" {
			attrs = append(attrs, slog.String("scheduler_time", scheduleTime))
		}

		if status >= http.StatusInternalServerError {
			slog.ErrorContext(c.Request.Context(), "Request processed", attrs...)
		} else {
			slog.InfoContext(c.Request.Context(), "Request processed", attrs...)
		}
	}
}
