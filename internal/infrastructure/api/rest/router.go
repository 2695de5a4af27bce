package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/ais-go/internal/application/auth"
	appengine "github.com/smilemakc/ais-go/internal/application/engine"
	"github.com/smilemakc/ais-go/internal/infrastructure/cache"
	"github.com/smilemakc/ais-go/internal/infrastructure/logger"
	"github.com/smilemakc/ais-go/internal/infrastructure/storage"
	"github.com/uptrace/bun"
)

// Dependencies bundles everything NewRouter needs to wire the API
// surface; cmd/server builds one of these after standing up its
// infrastructure and hands it here.
type Dependencies struct {
	DB      *bun.DB
	Cache   *cache.RedisCache // nil if Redis is not configured
	Manager *appengine.Manager
	Gate    *auth.Gate
	Logger  *logger.Logger
	CORS    bool
}

// NewRouter builds the gin.Engine: recovery/logging middleware, CORS
// (if enabled), health/ready/metrics endpoints, and the versioned
// /api/v1 plan and run routes behind the bearer-token gate.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	recoveryMW := NewRecoveryMiddleware(deps.Logger)
	loggingMW := NewLoggingMiddleware(deps.Logger)
	authMW := NewAuthMiddleware(deps.Gate)

	router.Use(recoveryMW.Recovery())
	router.Use(loggingMW.RequestLogger())

	if deps.CORS {
		router.Use(corsMiddleware())
	}

	registerOpsEndpoints(router, deps)

	planHandlers := NewPlanHandlers(deps.Manager)
	runHandlers := NewRunHandlers(deps.Manager)

	v1 := router.Group("/api/v1")
	{
		plans := v1.Group("/plans")
		plans.Use(authMW.RequireAPIKey())
		{
			plans.POST("", planHandlers.Compile)
			plans.GET("/:id", planHandlers.Get)
		}

		runs := v1.Group("/runs")
		runs.Use(authMW.RequireAPIKey())
		{
			runs.POST("", runHandlers.Start)
			runs.POST("/:id/advance", runHandlers.Advance)
			runs.GET("/:id/checkpoint", runHandlers.GetCheckpoint)
			runs.GET("/:id/events", runHandlers.ListEvents)
		}
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func registerOpsEndpoints(router *gin.Engine, deps Dependencies) {
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if deps.DB != nil {
			if err := storage.Ping(ctx, deps.DB); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": fmt.Sprintf("database: %s", err)})
				return
			}
		}
		if deps.Cache != nil {
			if err := deps.Cache.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": fmt.Sprintf("redis: %s", err)})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		metrics := gin.H{}
		if deps.DB != nil {
			dbStats := storage.Stats(deps.DB)
			metrics["database"] = gin.H{
				"open_connections": dbStats.OpenConnections,
				"in_use":           dbStats.InUse,
				"idle":             dbStats.Idle,
			}
		}
		if deps.Cache != nil {
			cacheStats := deps.Cache.Stats()
			metrics["redis"] = gin.H{
				"hits":        cacheStats.Hits,
				"misses":      cacheStats.Misses,
				"total_conns": cacheStats.TotalConns,
				"idle_conns":  cacheStats.IdleConns,
			}
		}
		c.JSON(http.StatusOK, gin.H{"metrics": metrics})
	})
}
