package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/valora-tenant/internal/config"
	"github.com/smallbiznis/valora-tenant/internal/http/handler"
	"github.com/smallbiznis/valora-tenant/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, tenantHandler *handler.TenantHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	tenantGroup := r.Group("/tenant")
	{
		tenantGroup.POST("/signup", tenantHandler.Register)
		tenantGroup.POST("/activate", tenantHandler.Activate)
		tenantGroup.POST("/verify", tenantHandler.Verify)
		tenantGroup.POST("/stage", tenantHandler.SetStage)
		tenantGroup.POST("/domain", tenantHandler.SetDomain)
		tenantGroup.GET("", tenantHandler.List)
	}

	return r
}
