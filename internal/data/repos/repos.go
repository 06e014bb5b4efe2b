package repos

import (
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos/audit"
	"github.com/carelattice/taxonomy-backend/internal/data/repos/bronze"
	"github.com/carelattice/taxonomy-backend/internal/data/repos/gold"
	"github.com/carelattice/taxonomy-backend/internal/data/repos/jobs"
	"github.com/carelattice/taxonomy-backend/internal/data/repos/silver"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type LoadRepo = bronze.LoadRepo
type LoadRowRepo = bronze.LoadRowRepo

type TaxonomyRepo = silver.TaxonomyRepo
type NodeTypeRepo = silver.NodeTypeRepo
type AttributeTypeRepo = silver.AttributeTypeRepo
type NodeRepo = silver.NodeRepo
type NodeAttributeRepo = silver.NodeAttributeRepo
type VersionRepo = silver.VersionRepo

type MappingRepo = gold.MappingRepo
type MappingVersionRepo = gold.MappingVersionRepo
type MappingRuleRepo = gold.MappingRuleRepo
type RuleAssignmentRepo = gold.RuleAssignmentRepo
type ProductionMappingRepo = gold.ProductionMappingRepo

type AuditLogRepo = audit.AuditLogRepo

type JobRunRepo = jobs.JobRunRepo

func NewLoadRepo(db *gorm.DB, baseLog *logger.Logger) LoadRepo {
	return bronze.NewLoadRepo(db, baseLog)
}
func NewLoadRowRepo(db *gorm.DB, baseLog *logger.Logger) LoadRowRepo {
	return bronze.NewLoadRowRepo(db, baseLog)
}

func NewTaxonomyRepo(db *gorm.DB, baseLog *logger.Logger) TaxonomyRepo {
	return silver.NewTaxonomyRepo(db, baseLog)
}
func NewNodeTypeRepo(db *gorm.DB, baseLog *logger.Logger) NodeTypeRepo {
	return silver.NewNodeTypeRepo(db, baseLog)
}
func NewAttributeTypeRepo(db *gorm.DB, baseLog *logger.Logger) AttributeTypeRepo {
	return silver.NewAttributeTypeRepo(db, baseLog)
}
func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeRepo {
	return silver.NewNodeRepo(db, baseLog)
}
func NewNodeAttributeRepo(db *gorm.DB, baseLog *logger.Logger) NodeAttributeRepo {
	return silver.NewNodeAttributeRepo(db, baseLog)
}
func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return silver.NewVersionRepo(db, baseLog)
}

func NewMappingRepo(db *gorm.DB, baseLog *logger.Logger) MappingRepo {
	return gold.NewMappingRepo(db, baseLog)
}
func NewMappingVersionRepo(db *gorm.DB, baseLog *logger.Logger) MappingVersionRepo {
	return gold.NewMappingVersionRepo(db, baseLog)
}
func NewMappingRuleRepo(db *gorm.DB, baseLog *logger.Logger) MappingRuleRepo {
	return gold.NewMappingRuleRepo(db, baseLog)
}
func NewRuleAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) RuleAssignmentRepo {
	return gold.NewRuleAssignmentRepo(db, baseLog)
}
func NewProductionMappingRepo(db *gorm.DB, baseLog *logger.Logger) ProductionMappingRepo {
	return gold.NewProductionMappingRepo(db, baseLog)
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return audit.NewAuditLogRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
