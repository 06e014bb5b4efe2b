package mapping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	auditdom "github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

type ReviewMappingInput struct {
	MappingID uuid.UUID
	Approve   bool
	Actor     string
}

type ReviewMappingOutput struct {
	Mapping *gold.Mapping
}

// ReviewMapping resolves a pending_review mapping. Rejection retires the
// row, freeing the child for the next run. Approval of a lexical mapping
// flips it active; approval of an AI-produced mapping supersedes it with a
// human-attributed row instead, because rows written under an AI rule never
// enter the production set directly.
func (u Usecases) ReviewMapping(ctx context.Context, in ReviewMappingInput) (ReviewMappingOutput, error) {
	var out ReviewMappingOutput
	dbc := dbctx.Context{Ctx: ctx}

	row, err := u.deps.Mappings.GetByID(dbc, in.MappingID)
	if err != nil {
		return out, err
	}
	if row == nil {
		return out, fmt.Errorf("%w: mapping %s", pkgerrors.ErrNotFound, in.MappingID)
	}
	if row.Status != gold.MappingStatusPendingReview || !row.IsActive {
		return out, fmt.Errorf("%w: mapping %s is %s, only pending_review can be reviewed", pkgerrors.ErrInvalidArgument, row.ID, row.Status)
	}

	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if !in.Approve {
			return u.rejectMapping(txc, row, in.Actor, &out)
		}
		rule, err := u.deps.Rules.GetByID(txc, row.RuleID)
		if err != nil {
			return err
		}
		if rule != nil && rule.AIMappingFlag {
			return u.approveAsHuman(txc, row, in.Actor, &out)
		}
		return u.approveInPlace(txc, row, in.Actor, &out)
	})
	if err != nil {
		return out, err
	}
	u.deps.Log.Info("Mapping reviewed",
		"mapping_id", in.MappingID, "approved", in.Approve, "actor", in.Actor)
	return out, nil
}

func (u Usecases) rejectMapping(txc dbctx.Context, row *gold.Mapping, actor string, out *ReviewMappingOutput) error {
	before := *row
	if err := u.deps.Mappings.UpdateFields(txc, row.ID, map[string]interface{}{
		"is_active": false,
		"status":    gold.MappingStatusInactive,
	}); err != nil {
		return err
	}
	if err := u.deps.MappingVersions.CloseCurrent(txc, row.ID); err != nil {
		return err
	}
	after := before
	after.IsActive = false
	after.Status = gold.MappingStatusInactive
	out.Mapping = &after
	return u.appendMappingAudit(txc, auditdom.OpUpdate, &before, &after, actor, nil)
}

func (u Usecases) approveInPlace(txc dbctx.Context, row *gold.Mapping, actor string, out *ReviewMappingOutput) error {
	before := *row
	if err := u.deps.Mappings.UpdateFields(txc, row.ID, map[string]interface{}{
		"status": gold.MappingStatusActive,
	}); err != nil {
		return err
	}
	after := before
	after.Status = gold.MappingStatusActive
	out.Mapping = &after
	return u.appendMappingAudit(txc, auditdom.OpUpdate, &before, &after, actor, nil)
}

func (u Usecases) approveAsHuman(txc dbctx.Context, row *gold.Mapping, actor string, out *ReviewMappingOutput) error {
	human, err := u.humanRule(txc)
	if err != nil {
		return err
	}
	before := *row
	replacement := &gold.Mapping{
		ID:           uuid.New(),
		RuleID:       human.ID,
		MasterNodeID: row.MasterNodeID,
		ChildNodeID:  row.ChildNodeID,
		Confidence:   row.Confidence,
		Status:       gold.MappingStatusActive,
		IsActive:     true,
		CreatedBy:    actor,
		Details:      row.Details,
	}
	if _, err := u.deps.Mappings.Supersede(txc, row, replacement); err != nil {
		return err
	}
	if err := u.deps.MappingVersions.CloseCurrent(txc, row.ID); err != nil {
		return err
	}
	if _, err := u.deps.MappingVersions.Append(txc, []*gold.MappingVersion{{
		MappingID:         replacement.ID,
		VersionNumber:     replacement.MappingVersion,
		PreviousMappingID: &row.ID,
		ChangeType:        gold.MappingChangeReviewed,
		EffectiveFrom:     time.Now().UTC(),
	}}); err != nil {
		return err
	}
	retired := before
	retired.IsActive = false
	retired.Status = gold.MappingStatusInactive
	retired.SupersededBy = &replacement.ID
	if err := u.appendMappingAudit(txc, auditdom.OpUpdate, &before, &retired, actor, nil); err != nil {
		return err
	}
	if err := u.appendMappingAudit(txc, auditdom.OpInsert, nil, replacement, actor, nil); err != nil {
		return err
	}
	out.Mapping = replacement
	return nil
}

// humanRule returns the enabled rule that marks operator-made mappings.
func (u Usecases) humanRule(dbc dbctx.Context) (*gold.MappingRule, error) {
	rules, err := u.deps.Rules.ListEnabled(dbc)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r.HumanMappingFlag {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no enabled human override rule configured")
}

// ListMappings returns a taxonomy's mappings, optionally filtered by status.
func (u Usecases) ListMappings(ctx context.Context, taxonomyID int64, status string, limit, offset int) ([]*gold.Mapping, error) {
	return u.deps.Mappings.ListByTaxonomy(dbctx.Context{Ctx: ctx}, taxonomyID, status, limit, offset)
}

// ListPendingReview returns the review queue, oldest first.
func (u Usecases) ListPendingReview(ctx context.Context, taxonomyID int64, limit, offset int) ([]*gold.Mapping, error) {
	return u.deps.Mappings.ListPendingReview(dbctx.Context{Ctx: ctx}, taxonomyID, limit, offset)
}
