package app

import (
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type Repos struct {
	Loads    repos.LoadRepo
	LoadRows repos.LoadRowRepo

	Taxonomies     repos.TaxonomyRepo
	NodeTypes      repos.NodeTypeRepo
	AttributeTypes repos.AttributeTypeRepo
	Nodes          repos.NodeRepo
	NodeAttributes repos.NodeAttributeRepo
	Versions       repos.VersionRepo

	Mappings        repos.MappingRepo
	MappingVersions repos.MappingVersionRepo
	Rules           repos.MappingRuleRepo
	RuleAssignments repos.RuleAssignmentRepo
	Production      repos.ProductionMappingRepo

	Audit repos.AuditLogRepo

	JobRuns repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Loads:    repos.NewLoadRepo(db, log),
		LoadRows: repos.NewLoadRowRepo(db, log),

		Taxonomies:     repos.NewTaxonomyRepo(db, log),
		NodeTypes:      repos.NewNodeTypeRepo(db, log),
		AttributeTypes: repos.NewAttributeTypeRepo(db, log),
		Nodes:          repos.NewNodeRepo(db, log),
		NodeAttributes: repos.NewNodeAttributeRepo(db, log),
		Versions:       repos.NewVersionRepo(db, log),

		Mappings:        repos.NewMappingRepo(db, log),
		MappingVersions: repos.NewMappingVersionRepo(db, log),
		Rules:           repos.NewMappingRuleRepo(db, log),
		RuleAssignments: repos.NewRuleAssignmentRepo(db, log),
		Production:      repos.NewProductionMappingRepo(db, log),

		Audit: repos.NewAuditLogRepo(db, log),

		JobRuns: repos.NewJobRunRepo(db, log),
	}
}
