package app

import (
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/graph"
	"github.com/carelattice/taxonomy-backend/internal/jobs/pipeline"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/jobs/worker"
	"github.com/carelattice/taxonomy-backend/internal/modules/ingest"
	"github.com/carelattice/taxonomy-backend/internal/modules/mapping"
	"github.com/carelattice/taxonomy-backend/internal/modules/promotion"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type Services struct {
	// Domain
	Ingest    ingest.Usecases
	Mapping   mapping.Usecases
	Promotion promotion.Usecases

	// Job infra
	Enqueuer    runtime.Enqueuer
	JobRegistry *runtime.Registry
	JobWorker   *worker.Worker

	// Graph is nil unless NEO4J_URI is configured.
	Graph *graph.TaxonomyGraph
}

func wireServices(db *gorm.DB, log *logger.Logger, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	ingestUC := ingest.New(ingest.UsecasesDeps{
		DB:  db,
		Log: log,

		Loads:    repos.Loads,
		LoadRows: repos.LoadRows,

		Taxonomies:     repos.Taxonomies,
		NodeTypes:      repos.NodeTypes,
		AttributeTypes: repos.AttributeTypes,
		Nodes:          repos.Nodes,
		NodeAttributes: repos.NodeAttributes,
		Versions:       repos.Versions,

		Mappings: repos.Mappings,

		Audit: repos.Audit,
	})

	// Semantic matching is optional; without an OpenAI key the cascade
	// ends at fuzzy.
	var matcher mapping.SemanticMatcher
	if clients.OpenAI != nil {
		matcher = mapping.NewOpenAIMatcher(clients.OpenAI, log)
	}

	mappingUC := mapping.New(mapping.UsecasesDeps{
		DB:  db,
		Log: log,

		Taxonomies: repos.Taxonomies,
		NodeTypes:  repos.NodeTypes,
		Nodes:      repos.Nodes,
		Versions:   repos.Versions,

		Rules:           repos.Rules,
		Assignments:     repos.RuleAssignments,
		Mappings:        repos.Mappings,
		MappingVersions: repos.MappingVersions,

		Audit: repos.Audit,

		Matcher: matcher,
	})

	promotionUC := promotion.New(promotion.UsecasesDeps{
		DB:  db,
		Log: log,

		Mappings:   repos.Mappings,
		Production: repos.Production,
		Audit:      repos.Audit,
	})

	enq := runtime.NewEnqueuer(repos.JobRuns)

	// The projector interface is assigned only when the client exists so
	// the pipelines see a true nil and skip graph_project enqueues.
	var taxonomyGraph *graph.TaxonomyGraph
	var projector pipeline.GraphProjector
	if clients.Neo4j != nil {
		taxonomyGraph = graph.NewTaxonomyGraph(clients.Neo4j, log, repos.Taxonomies, repos.NodeTypes, repos.Nodes, repos.Mappings)
		projector = taxonomyGraph
	}

	jobRegistry := runtime.NewRegistry()
	if err := pipeline.RegisterAll(jobRegistry, pipeline.Deps{
		DB:  db,
		Log: log,

		Ingest:    ingestUC,
		Mapping:   mappingUC,
		Promotion: promotionUC,

		Loads:      repos.Loads,
		Taxonomies: repos.Taxonomies,
		Versions:   repos.Versions,

		Enqueue:  enq,
		Bus:      clients.Bus,
		Callback: clients.Callback,
		Graph:    projector,
	}); err != nil {
		return Services{}, err
	}

	runWorker := strings.EqualFold(strings.TrimSpace(os.Getenv("RUN_WORKER")), "true")
	var jobWorker *worker.Worker
	if runWorker {
		jobWorker = worker.NewWorker(db, log, repos.JobRuns, jobRegistry)
	}

	return Services{
		Ingest:    ingestUC,
		Mapping:   mappingUC,
		Promotion: promotionUC,

		Enqueuer:    enq,
		JobRegistry: jobRegistry,
		JobWorker:   jobWorker,

		Graph: taxonomyGraph,
	}, nil
}
