package api

import (
	"rolloutgate/internal/metrics"
	"rolloutgate/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RegisterRoutes wires the control-plane API. Evaluation and health stay
// public within the deployment boundary; everything that mutates flag state
// sits behind JWT auth, and write routes are additionally rate limited.
func RegisterRoutes(
	r *gin.Engine,
	flagHandler *FlagHandler,
	rollbackHandler *RollbackHandler,
	authHandler *AuthHandler,
	rdb *redis.Client,
	requestsPerSecond int,
	env string,
) {
	r.Use(middleware.CorsMiddleware())
	r.Use(middleware.RequestID())
	r.Use(middleware.GinZapLogger())
	r.Use(middleware.GinZapRecovery())
	r.Use(middleware.HTTPMetricsMiddleware())
	r.Use(middleware.TraceMiddleware())

	r.GET("/health", flagHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Read-side evaluation: callers only need to know whether a flag is on.
	v1.GET("/flags/:key/evaluate", flagHandler.Evaluate)

	devMode := env != "prod"
	admin := v1.Group("")
	admin.Use(middleware.JWTMiddleware(devMode))
	{
		admin.POST("/auth/logout", authHandler.Logout)
		admin.GET("/auth/me", authHandler.Me)

		admin.GET("/flags", flagHandler.ListStatuses)
		admin.GET("/flags/:key", flagHandler.GetStatus)
		admin.GET("/flags/:key/impact", flagHandler.EstimateImpact)
		admin.GET("/flags/:key/rollbacks", rollbackHandler.History)
		admin.GET("/flags/:key/rollbacks/log", rollbackHandler.PersistedHistory)
		admin.GET("/rollbacks", rollbackHandler.AllHistory)

		writes := admin.Group("")
		writes.Use(middleware.RateLimitMiddleware(rdb, requestsPerSecond))
		{
			writes.POST("/flags", flagHandler.InitializeDefaults)
			writes.POST("/cache/clear", flagHandler.ClearCache)
			writes.POST("/flags/:key/enable", flagHandler.Enable)
			writes.POST("/flags/:key/disable", flagHandler.Disable)
			writes.PUT("/flags/:key/percentage", flagHandler.SetPercentage)
			writes.POST("/flags/:key/graduate", flagHandler.Graduate)
			writes.POST("/flags/:key/overrides", flagHandler.AddOverride)
			writes.DELETE("/flags/:key/overrides/:user_id", flagHandler.RemoveOverride)
			writes.DELETE("/flags/:key", flagHandler.Delete)

			writes.POST("/flags/:key/rollback", rollbackHandler.Emergency)
			writes.POST("/flags/:key/rollback/auto", rollbackHandler.Automatic)
			writes.POST("/rollbacks/group", rollbackHandler.Group)
		}
	}
}
