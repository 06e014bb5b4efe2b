package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/carelattice/taxonomy-backend/internal/http/handlers"
	httpMW "github.com/carelattice/taxonomy-backend/internal/http/middleware"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	LoadHandler     *httpH.LoadHandler
	TaxonomyHandler *httpH.TaxonomyHandler
	MappingHandler  *httpH.MappingHandler
	JobHandler      *httpH.JobHandler

	HealthHandler *httpH.HealthHandler
}

// NewRouter wires the versioned API. Reads are open; everything that writes
// goes through the auth middleware when one is configured.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("taxonomy-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/v1/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/v1")
	{
		// Loads (read)
		if cfg.LoadHandler != nil {
			api.GET("/loads/:id", cfg.LoadHandler.GetLoad)
			api.GET("/loads/:id/rows", cfg.LoadHandler.ListLoadRows)
		}

		// Taxonomies (read)
		if cfg.TaxonomyHandler != nil {
			api.GET("/taxonomies", cfg.TaxonomyHandler.ListTaxonomies)
			api.GET("/taxonomies/:id/tree", cfg.TaxonomyHandler.GetTree)
			api.GET("/taxonomies/:id/versions", cfg.TaxonomyHandler.ListVersions)
			api.GET("/taxonomies/:id/mappings", cfg.TaxonomyHandler.ListMappings)
		}

		// Mappings (read)
		if cfg.MappingHandler != nil {
			api.GET("/mappings/production", cfg.MappingHandler.ListProduction)
		}

		// Jobs
		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Loads (write)
		if cfg.LoadHandler != nil {
			protected.POST("/loads", cfg.LoadHandler.OpenLoad)
			protected.POST("/loads/file", cfg.LoadHandler.OpenLoadFromFile)
			protected.POST("/loads/:id/withdraw", cfg.LoadHandler.WithdrawLoad)
		}

		// Taxonomies (write)
		if cfg.TaxonomyHandler != nil {
			protected.POST("/taxonomies/:id/remap", cfg.TaxonomyHandler.Remap)
		}

		// Mappings (write)
		if cfg.MappingHandler != nil {
			protected.POST("/mappings/:id/review", cfg.MappingHandler.ReviewMapping)
			protected.POST("/mappings/promote", cfg.MappingHandler.Promote)
		}
	}

	return r
}
