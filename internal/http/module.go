// Package http holds the composition types shared by the router and the
// bounded contexts that mount routes on it.
package http

import (
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context with an HTTP surface.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups and shared middleware a module
// mounts onto. Groups are nested: Protected and Admin sit under V1.
type RouterContext struct {
	Engine *gin.Engine

	// V1 is /api/v1 with no authentication.
	V1 *gin.RouterGroup
	// Protected requires a valid access token.
	Protected *gin.RouterGroup
	// Admin is /api/v1/admin and requires the admin role.
	Admin *gin.RouterGroup

	Config         config.JWTConfig
	AuthMiddleware gin.HandlerFunc

	// TriggerRateLimiter throttles the public trigger routes; nil skips throttling.
	TriggerRateLimiter *httpkit.IPRateLimiter
}
