package http

import (
	"context"

	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs the readiness probe.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is what a main package hands to router.New once every dependency
// is built.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health may be nil, in which case /api/ready always reports ready.
	Health  HealthChecker
	Modules []Module
}
