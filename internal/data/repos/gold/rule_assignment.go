package gold

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type RuleAssignmentRepo interface {
	Ensure(dbc dbctx.Context, rows []*gold.MappingRuleAssignment) error
	ListForTypePair(dbc dbctx.Context, masterNodeTypeID, childNodeTypeID int64) ([]*gold.MappingRuleAssignment, error)
	ListByChildType(dbc dbctx.Context, childNodeTypeID int64) ([]*gold.MappingRuleAssignment, error)
	ListByRule(dbc dbctx.Context, ruleID uuid.UUID) ([]*gold.MappingRuleAssignment, error)
}

type ruleAssignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRuleAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) RuleAssignmentRepo {
	return &ruleAssignmentRepo{db: db, log: baseLog.With("repo", "RuleAssignmentRepo")}
}

func (r *ruleAssignmentRepo) Ensure(dbc dbctx.Context, rows []*gold.MappingRuleAssignment) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}, {Name: "master_node_type_id"}, {Name: "child_node_type_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

// ListForTypePair returns the assignments that gate the cascade for one
// (master level, customer level) pairing, cheapest strategy first.
func (r *ruleAssignmentRepo) ListForTypePair(dbc dbctx.Context, masterNodeTypeID, childNodeTypeID int64) ([]*gold.MappingRuleAssignment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.MappingRuleAssignment
	if masterNodeTypeID == 0 || childNodeTypeID == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("master_node_type_id = ? AND child_node_type_id = ?", masterNodeTypeID, childNodeTypeID).
		Order("priority ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByChildType returns every assignment whose child side is the given
// node type, across master types, cheapest strategy first.
func (r *ruleAssignmentRepo) ListByChildType(dbc dbctx.Context, childNodeTypeID int64) ([]*gold.MappingRuleAssignment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.MappingRuleAssignment
	if childNodeTypeID == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("child_node_type_id = ?", childNodeTypeID).
		Order("priority ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ruleAssignmentRepo) ListByRule(dbc dbctx.Context, ruleID uuid.UUID) ([]*gold.MappingRuleAssignment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*gold.MappingRuleAssignment
	if ruleID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("rule_id = ?", ruleID).
		Order("priority ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
