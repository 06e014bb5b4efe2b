package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

type LoadWithdrawInput struct {
	LoadID uuid.UUID
	Actor  string
}

type LoadWithdrawOutput struct {
	Load *bronze.Load
}

// LoadWithdraw retires a finished load without touching silver rows: the load
// and its bronze rows flip inactive, and visibility queries stop seeing nodes
// whose lineage points at it. The data stays for audit; a later load that
// re-presents the same values re-adopts the nodes by updating their lineage.
// Open loads cannot be withdrawn, they have to finish or fail first.
func (u Usecases) LoadWithdraw(ctx context.Context, in LoadWithdrawInput) (*LoadWithdrawOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	load, err := u.deps.Loads.GetByID(dbc, in.LoadID)
	if err != nil {
		return nil, err
	}
	if load == nil {
		return nil, fmt.Errorf("%w: load %s", pkgerrors.ErrNotFound, in.LoadID)
	}
	if load.Status == bronze.LoadStatusInProgress {
		return nil, fmt.Errorf("%w: load %s is still in progress", pkgerrors.ErrLoadInvalid, load.ID)
	}
	out := &LoadWithdrawOutput{Load: load}
	if !load.IsActive {
		return out, nil
	}

	before, err := json.Marshal(load)
	if err != nil {
		return nil, err
	}

	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := u.deps.Loads.Withdraw(txc, load.ID); err != nil {
			return err
		}
		if err := u.deps.LoadRows.DeactivateByLoad(txc, load.ID); err != nil {
			return err
		}

		load.IsActive = false
		after, err := json.Marshal(load)
		if err != nil {
			return err
		}
		entry := &audit.AuditLog{
			EntityTable: load.TableName(),
			EntityID:    load.ID.String(),
			Operation:   audit.OpUpdate,
			OldRow:      datatypes.JSON(before),
			NewRow:      datatypes.JSON(after),
			Actor:       in.Actor,
			LoadID:      &load.ID,
			OccurredAt:  time.Now().UTC(),
		}
		return u.deps.Audit.Append(txc, []*audit.AuditLog{entry})
	})
	if err != nil {
		return nil, err
	}

	if u.deps.Log != nil {
		u.deps.Log.Info("load withdrawn",
			"load_id", load.ID.String(),
			"taxonomy_id", load.TaxonomyID,
			"actor", in.Actor)
	}
	return out, nil
}

// GetLoadStatus reads one load with its parsed details and live row tallies.
type LoadStatusOutput struct {
	Load    *bronze.Load
	Details bronze.LoadDetails
	Counts  map[string]int64
}

func (u Usecases) GetLoadStatus(ctx context.Context, loadID uuid.UUID) (*LoadStatusOutput, error) {
	dbc := dbctx.Context{Ctx: ctx}

	load, err := u.deps.Loads.GetByID(dbc, loadID)
	if err != nil {
		return nil, err
	}
	if load == nil {
		return nil, fmt.Errorf("%w: load %s", pkgerrors.ErrNotFound, loadID)
	}

	out := &LoadStatusOutput{Load: load}
	if len(load.Details) > 0 {
		if err := json.Unmarshal(load.Details, &out.Details); err != nil {
			return nil, fmt.Errorf("load %s details unreadable: %w", loadID, err)
		}
	}
	counts, err := u.deps.LoadRows.CountStatuses(dbc, load.ID)
	if err != nil {
		return nil, err
	}
	out.Counts = counts
	return out, nil
}
