package app

import (
	"github.com/gin-gonic/gin"

	"github.com/carelattice/taxonomy-backend/internal/http"
	httpH "github.com/carelattice/taxonomy-backend/internal/http/handlers"
	httpMW "github.com/carelattice/taxonomy-backend/internal/http/middleware"
	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Load     *httpH.LoadHandler
	Taxonomy *httpH.TaxonomyHandler
	Mapping  *httpH.MappingHandler
	Job      *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, repos Repos, services Services, clients Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Load:     httpH.NewLoadHandler(log, services.Ingest, repos.LoadRows, services.Enqueuer, clients.Bucket),
		Taxonomy: httpH.NewTaxonomyHandler(log, services.Ingest, services.Mapping, repos.Taxonomies, repos.Versions, services.Enqueuer),
		Mapping:  httpH.NewMappingHandler(log, services.Mapping, services.Promotion, services.Enqueuer),
		Job:      httpH.NewJobHandler(repos.JobRuns),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireRouter(log *logger.Logger, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		AuthMiddleware: middleware.Auth,

		LoadHandler:     handlers.Load,
		TaxonomyHandler: handlers.Taxonomy,
		MappingHandler:  handlers.Mapping,
		JobHandler:      handlers.Job,

		HealthHandler: handlers.Health,
	})
}
