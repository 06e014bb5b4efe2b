package app

import (
	"github.com/carelattice/taxonomy-backend/internal/platform/envutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type Config struct {
	// JWTSecretKey signs and verifies the HS256 service tokens callers
	// present on mutating routes.
	JWTSecretKey string

	// HTTPAddr is the listen address for the API when RUN_SERVER is true.
	HTTPAddr string

	// MetricsAddr is the listen address for the Prometheus endpoint when
	// METRICS_ENABLED is true.
	MetricsAddr string

	Environment string
	Version     string
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := envutil.Str("JWT_SECRET_KEY", "")
	if jwtSecretKey == "" {
		jwtSecretKey = "defaultsecret"
		log.Warn("JWT_SECRET_KEY unset, using development default")
	}
	return Config{
		JWTSecretKey: jwtSecretKey,
		HTTPAddr:     ":" + envutil.Str("PORT", "8080"),
		MetricsAddr:  envutil.Str("METRICS_ADDR", ":9091"),
		Environment:  envutil.Str("ENVIRONMENT", "development"),
		Version:      envutil.Str("SERVICE_VERSION", "dev"),
	}
}
