// Package mapping computes gold-layer assignments from customer taxonomy
// nodes to master nodes. A fixed strategy cascade (exact, NLP qualifier,
// fuzzy, semantic) runs per node; rule assignments on the node's type pair
// select which strategies are enabled. The writer versions every assignment
// and supersedes prior ones, never touching operator-made mappings.
package mapping

import (
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Taxonomies repos.TaxonomyRepo
	NodeTypes  repos.NodeTypeRepo
	Nodes      repos.NodeRepo
	Versions   repos.VersionRepo

	Rules           repos.MappingRuleRepo
	Assignments     repos.RuleAssignmentRepo
	Mappings        repos.MappingRepo
	MappingVersions repos.MappingVersionRepo

	Audit repos.AuditLogRepo

	// Matcher is the external semantic collaborator. Nil disables the
	// semantic strategy; the cascade then ends at fuzzy.
	Matcher SemanticMatcher
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases { return Usecases{deps: deps} }

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}
