// Package ingest turns raw tabular taxonomy input into the silver hierarchy:
// layout resolution, row decoding, rolling-ancestor parent selection, N/A gap
// filling, natural-key upserts, load finalization and version transitions.
package ingest

import (
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Loads    repos.LoadRepo
	LoadRows repos.LoadRowRepo

	Taxonomies     repos.TaxonomyRepo
	NodeTypes      repos.NodeTypeRepo
	AttributeTypes repos.AttributeTypeRepo
	Nodes          repos.NodeRepo
	NodeAttributes repos.NodeAttributeRepo
	Versions       repos.VersionRepo

	Mappings repos.MappingRepo

	Audit repos.AuditLogRepo
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases { return Usecases{deps: deps} }

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}
