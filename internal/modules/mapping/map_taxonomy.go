package mapping

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
	"github.com/carelattice/taxonomy-backend/internal/platform/envutil"
)

type MapTaxonomyInput struct {
	TaxonomyID int64
	// NodeIDs restricts the run to a subset of the taxonomy's nodes. Empty
	// maps the full active set.
	NodeIDs []int64
	// VersionID names the version row whose remap counters this run feeds.
	// Nil resolves the taxonomy's open version; runs triggered by a master
	// change pass the master's version row instead.
	VersionID *uuid.UUID
	// LoadID attributes the run to the load that triggered it.
	LoadID *uuid.UUID
	Actor  string
	Report func(done, total int)
}

type MapTaxonomyOutput struct {
	Taxonomy *silver.Taxonomy
	Version  *silver.TaxonomyVersion
	Stats    RunStats
}

// RunStats tallies one mapping run. Reasons keeps the per-node explanation
// for every node that ended unmapped or failed.
type RunStats struct {
	Processed int
	New       int
	Changed   int
	Unchanged int
	Unmapped  int
	Failed    int
	Pinned    int
	Reasons   map[int64]string
}

// MapTaxonomy runs the matcher cascade over a customer taxonomy's nodes and
// writes the resulting mappings. Nodes are independent once their tree is
// built, so the run fans out across a bounded worker pool; per-node failures
// are counted, never fatal. Remap counters accumulate onto the version row
// that triggered the run.
func (u Usecases) MapTaxonomy(ctx context.Context, in MapTaxonomyInput) (MapTaxonomyOutput, error) {
	var out MapTaxonomyOutput
	dbc := dbctx.Context{Ctx: ctx}

	tax, err := u.deps.Taxonomies.GetByID(dbc, in.TaxonomyID)
	if err != nil {
		return out, err
	}
	if tax == nil {
		return out, fmt.Errorf("%w: taxonomy %d", pkgerrors.ErrNotFound, in.TaxonomyID)
	}
	if tax.IsMaster() {
		return out, fmt.Errorf("%w: the master taxonomy is the mapping target, not a source", pkgerrors.ErrInvalidArgument)
	}
	out.Taxonomy = tax

	version, err := u.resolveRunVersion(dbc, in)
	if err != nil {
		return out, err
	}
	out.Version = version

	targets, err := u.resolveTargets(dbc, in)
	if err != nil {
		return out, err
	}
	allActive, err := u.deps.Nodes.GetActiveByTaxonomy(dbc, in.TaxonomyID)
	if err != nil {
		return out, err
	}
	masters, err := u.deps.Nodes.GetActiveByTaxonomy(dbc, silver.MasterTaxonomyID)
	if err != nil {
		return out, err
	}
	ix := newMasterIndex(masters)
	children := buildChildren(targets, allActive)

	stats := RunStats{Reasons: map[int64]string{}}
	out.Stats = stats
	if len(children) == 0 {
		if version != nil {
			if err := u.deps.Versions.SetRemappingStatus(dbc, version.ID, silver.RemapStatusCompleted); err != nil {
				return out, err
			}
		}
		return out, nil
	}

	childIDs := make([]int64, 0, len(children))
	for _, c := range children {
		childIDs = append(childIDs, c.Node.ID)
	}
	existingRows, err := u.deps.Mappings.GetActiveByChildNodes(dbc, childIDs)
	if err != nil {
		return out, err
	}
	existingByChild := make(map[int64]*gold.Mapping, len(existingRows))
	ruleIDs := make([]uuid.UUID, 0, len(existingRows))
	for _, m := range existingRows {
		existingByChild[m.ChildNodeID] = m
		ruleIDs = append(ruleIDs, m.RuleID)
	}
	existingRules, err := u.deps.Rules.GetByIDs(dbc, ruleIDs)
	if err != nil {
		return out, err
	}
	ruleByID := make(map[uuid.UUID]*gold.MappingRule, len(existingRules))
	for _, r := range existingRules {
		ruleByID[r.ID] = r
	}

	conc := envutil.Int("MAPPING_CONCURRENCY", 8)
	if conc < 1 {
		conc = 1
	}
	semConc := envutil.Int("SEMANTIC_CONCURRENCY", 4)
	if semConc < 1 {
		semConc = 1
	}
	topK := envutil.Int("SEMANTIC_TOP_K", 20)
	timeout := time.Duration(envutil.Int("SEMANTIC_TIMEOUT_MS", 30000)) * time.Millisecond
	semantic := u.semanticStrategy(make(chan struct{}, semConc), topK, timeout)

	plans := map[int64]*cascadePlan{}
	for _, c := range children {
		typeID := c.Node.NodeTypeID
		if _, ok := plans[typeID]; ok {
			continue
		}
		plan, err := u.buildPlan(dbc, ix, typeID, semantic, in.Actor)
		if err != nil {
			return out, err
		}
		plans[typeID] = plan
	}

	if version != nil {
		if err := u.deps.Versions.SetRemappingStatus(dbc, version.ID, silver.RemapStatusInProgress); err != nil {
			return out, err
		}
	}
	u.deps.Log.Info("Mapping run started",
		"taxonomy_id", tax.ID, "nodes", len(children), "concurrency", conc)

	var mu sync.Mutex
	var doneCount int32
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(conc)
	for _, child := range children {
		child := child
		eg.Go(func() error {
			defer func() {
				done := int(atomic.AddInt32(&doneCount, 1))
				if in.Report != nil {
					in.Report(done, len(children))
				}
			}()
			if err := egctx.Err(); err != nil {
				return err
			}
			outcome, reason, err := u.mapOne(egctx, child, plans[child.Node.NodeTypeID], existingByChild[child.Node.ID], ruleByID, in.Actor, in.LoadID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			switch outcome {
			case outcomeNew:
				stats.New++
			case outcomeChanged:
				stats.Changed++
			case outcomeUnchanged:
				stats.Unchanged++
			case outcomePinned:
				stats.Pinned++
			case outcomeFailed:
				stats.Failed++
				stats.Reasons[child.Node.ID] = reason
			case outcomeUnmapped:
				stats.Unmapped++
				stats.Reasons[child.Node.ID] = reason
			}
			return nil
		})
	}
	runErr := eg.Wait()
	out.Stats = stats

	if version != nil {
		if err := u.deps.Versions.IncrementRemapCounters(dbc, version.ID,
			stats.Processed, stats.Changed, stats.Unchanged, stats.Failed, stats.New); err != nil {
			return out, err
		}
		status := silver.RemapStatusCompleted
		if runErr != nil {
			status = silver.RemapStatusFailed
		}
		if err := u.deps.Versions.SetRemappingStatus(dbc, version.ID, status); err != nil {
			return out, err
		}
	}
	if runErr != nil {
		return out, runErr
	}

	u.deps.Log.Info("Mapping run finished",
		"taxonomy_id", tax.ID,
		"processed", stats.Processed,
		"new", stats.New,
		"changed", stats.Changed,
		"unchanged", stats.Unchanged,
		"unmapped", stats.Unmapped,
		"failed", stats.Failed,
		"pinned", stats.Pinned)
	return out, nil
}

// Node-level outcomes beyond the writer's new/changed/unchanged.
const (
	outcomePinned   = "pinned"
	outcomeFailed   = "failed"
	outcomeUnmapped = "unmapped"
)

// mapOne takes one child through the cascade. Strategy and write errors are
// node-local: the node counts as failed and the run moves on. Only context
// cancellation propagates.
func (u Usecases) mapOne(ctx context.Context, child *ChildNode, plan *cascadePlan, existing *gold.Mapping, ruleByID map[uuid.UUID]*gold.MappingRule, actor string, loadID *uuid.UUID) (string, string, error) {
	if existing != nil {
		if r := ruleByID[existing.RuleID]; r != nil && r.HumanMappingFlag {
			return outcomePinned, "", nil
		}
	}
	if plan == nil || len(plan.steps) == 0 {
		return outcomeUnmapped, "no strategies enabled for node type", nil
	}
	for _, step := range plan.steps {
		m, err := step.run(ctx, child, plan.pool)
		if err != nil {
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			u.deps.Log.Warn("Matching strategy failed",
				"strategy", step.name, "child_node_id", child.Node.ID, "error", err)
			return outcomeFailed, fmt.Sprintf("%s: %v", step.name, err), nil
		}
		if m == nil {
			continue
		}
		outcome, err := u.writeMatch(ctx, child, m, existing, step.rule, actor, loadID)
		if err != nil {
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			u.deps.Log.Warn("Mapping write failed",
				"strategy", step.name, "child_node_id", child.Node.ID, "error", err)
			return outcomeFailed, fmt.Sprintf("write: %v", err), nil
		}
		return outcome, "", nil
	}
	return outcomeUnmapped, "no strategy matched", nil
}

func (u Usecases) resolveRunVersion(dbc dbctx.Context, in MapTaxonomyInput) (*silver.TaxonomyVersion, error) {
	if in.VersionID != nil {
		return u.deps.Versions.GetByID(dbc, *in.VersionID)
	}
	return u.deps.Versions.GetOpen(dbc, in.TaxonomyID)
}

func (u Usecases) resolveTargets(dbc dbctx.Context, in MapTaxonomyInput) ([]*silver.TaxonomyNode, error) {
	if len(in.NodeIDs) == 0 {
		return u.deps.Nodes.GetActiveMappableByTaxonomy(dbc, in.TaxonomyID)
	}
	rows, err := u.deps.Nodes.GetByIDs(dbc, in.NodeIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*silver.TaxonomyNode, 0, len(rows))
	for _, n := range rows {
		if n.TaxonomyID != in.TaxonomyID {
			return nil, fmt.Errorf("%w: node %d is not in taxonomy %d", pkgerrors.ErrInvalidArgument, n.ID, in.TaxonomyID)
		}
		out = append(out, n)
	}
	return out, nil
}
