package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdom "github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

// Write outcomes, tallied into the run's remap counters.
const (
	outcomeNew       = "new"
	outcomeChanged   = "changed"
	outcomeUnchanged = "unchanged"
)

// confidenceScore converts the matcher's 0.0-1.0 confidence to the stored
// 0-100 integer.
func confidenceScore(confidence float64) int {
	score := int(math.Round(confidence * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func statusForScore(score int) string {
	if score >= gold.ActiveStatusThreshold {
		return gold.MappingStatusActive
	}
	return gold.MappingStatusPendingReview
}

// writeMatch persists one cascade verdict. A fresh child gets a new mapping
// and version link; a child already mapped to the same master keeps its row
// (refreshed when confidence moved); a child mapped elsewhere has the old
// row superseded by the new one. Everything, audit included, commits in one
// transaction.
func (u Usecases) writeMatch(ctx context.Context, child *ChildNode, m *Match, existing *gold.Mapping, rule *gold.MappingRule, actor string, loadID *uuid.UUID) (string, error) {
	score := confidenceScore(m.Confidence)
	details := gold.MappingDetails{
		Strategy:  m.Strategy,
		Reasoning: m.Reasoning,
		Remainder: m.Remainder,
	}
	if loadID != nil {
		details.LoadID = loadID.String()
	}
	detailsRaw, err := json.Marshal(details)
	if err != nil {
		return "", err
	}

	outcome := outcomeNew
	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		now := time.Now().UTC()

		switch {
		case existing == nil:
			row := &gold.Mapping{
				ID:             uuid.New(),
				RuleID:         rule.ID,
				MasterNodeID:   m.Candidate.Node.ID,
				ChildNodeID:    child.Node.ID,
				Confidence:     score,
				Status:         statusForScore(score),
				IsActive:       true,
				MappingVersion: 1,
				CreatedBy:      actor,
				Details:        datatypes.JSON(detailsRaw),
			}
			if _, err := u.deps.Mappings.Create(txc, []*gold.Mapping{row}); err != nil {
				return err
			}
			if _, err := u.deps.MappingVersions.Append(txc, []*gold.MappingVersion{{
				MappingID:     row.ID,
				VersionNumber: 1,
				ChangeType:    gold.MappingChangeNew,
				EffectiveFrom: now,
			}}); err != nil {
				return err
			}
			return u.appendMappingAudit(txc, auditdom.OpInsert, nil, row, actor, loadID)

		case existing.MasterNodeID == m.Candidate.Node.ID:
			if existing.Confidence == score && existing.Status == statusForScore(score) {
				outcome = outcomeUnchanged
				return nil
			}
			outcome = outcomeChanged
			before := *existing
			updates := map[string]interface{}{
				"confidence": score,
				"status":     statusForScore(score),
				"details":    datatypes.JSON(detailsRaw),
			}
			if err := u.deps.Mappings.UpdateFields(txc, existing.ID, updates); err != nil {
				return err
			}
			after := before
			after.Confidence = score
			after.Status = statusForScore(score)
			after.Details = datatypes.JSON(detailsRaw)
			return u.appendMappingAudit(txc, auditdom.OpUpdate, &before, &after, actor, loadID)

		default:
			outcome = outcomeChanged
			before := *existing
			replacement := &gold.Mapping{
				ID:           uuid.New(),
				RuleID:       rule.ID,
				MasterNodeID: m.Candidate.Node.ID,
				ChildNodeID:  child.Node.ID,
				Confidence:   score,
				Status:       statusForScore(score),
				IsActive:     true,
				CreatedBy:    actor,
				Details:      datatypes.JSON(detailsRaw),
			}
			if _, err := u.deps.Mappings.Supersede(txc, existing, replacement); err != nil {
				return err
			}
			if err := u.deps.MappingVersions.CloseCurrent(txc, existing.ID); err != nil {
				return err
			}
			if _, err := u.deps.MappingVersions.Append(txc, []*gold.MappingVersion{{
				MappingID:         replacement.ID,
				VersionNumber:     replacement.MappingVersion,
				PreviousMappingID: &existing.ID,
				ChangeType:        gold.MappingChangeSuperseded,
				EffectiveFrom:     now,
			}}); err != nil {
				return err
			}
			retired := before
			retired.IsActive = false
			retired.Status = gold.MappingStatusInactive
			retired.SupersededBy = &replacement.ID
			if err := u.appendMappingAudit(txc, auditdom.OpUpdate, &before, &retired, actor, loadID); err != nil {
				return err
			}
			return u.appendMappingAudit(txc, auditdom.OpInsert, nil, replacement, actor, loadID)
		}
	})
	if err != nil {
		return "", fmt.Errorf("write mapping for child node %d: %w", child.Node.ID, err)
	}
	return outcome, nil
}

func (u Usecases) appendMappingAudit(txc dbctx.Context, op string, oldRow, newRow *gold.Mapping, actor string, loadID *uuid.UUID) error {
	entry := &auditdom.AuditLog{
		EntityTable: gold.Mapping{}.TableName(),
		Operation:   op,
		Actor:       actor,
		LoadID:      loadID,
		OccurredAt:  time.Now().UTC(),
	}
	switch {
	case newRow != nil:
		entry.EntityID = newRow.ID.String()
	case oldRow != nil:
		entry.EntityID = oldRow.ID.String()
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return err
		}
		entry.OldRow = datatypes.JSON(raw)
	}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return err
		}
		entry.NewRow = datatypes.JSON(raw)
	}
	return u.deps.Audit.Append(txc, []*auditdom.AuditLog{entry})
}
