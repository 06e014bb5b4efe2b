package mapping

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdom "github.com/carelattice/taxonomy-backend/internal/domain/audit"
	"github.com/carelattice/taxonomy-backend/internal/domain/gold"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

// cascadePlan is the execution plan for one child node type: the merged
// master candidate pool and the enabled strategies in fixed order, each
// attributed to the rule that switched it on.
type cascadePlan struct {
	childTypeID int64
	pool        *typePool
	steps       []cascadeStep
}

type cascadeStep struct {
	name string
	rule *gold.MappingRule
	run  strategyFunc
}

// strategiesForCommand translates a rule command into the strategies it
// gates. Human gates nothing: it marks operator-made mappings the engine
// must leave alone.
func strategiesForCommand(command string) []string {
	switch command {
	case gold.RuleCommandEquals:
		return []string{StrategyExact}
	case gold.RuleCommandContains, gold.RuleCommandStartsWith:
		return []string{StrategyNLP}
	case gold.RuleCommandRegex:
		return []string{StrategyFuzzy}
	case gold.RuleCommandAI:
		return []string{StrategySemantic}
	default:
		return nil
	}
}

// buildPlan assembles the cascade for one child type from its rule
// assignments, creating default assignments first if the type arrives with
// none. A plan with zero steps is valid: every node of that type reports
// unmapped.
func (u Usecases) buildPlan(dbc dbctx.Context, ix *masterIndex, childTypeID int64, semantic strategyFunc, actor string) (*cascadePlan, error) {
	assigns, err := u.deps.Assignments.ListByChildType(dbc, childTypeID)
	if err != nil {
		return nil, err
	}
	if len(assigns) == 0 {
		assigns, err = u.ensureDefaultAssignments(dbc, ix, childTypeID, actor)
		if err != nil {
			return nil, err
		}
	}
	plan := &cascadePlan{childTypeID: childTypeID}
	if len(assigns) == 0 {
		plan.pool = newTypePool(ix, nil)
		return plan, nil
	}

	ruleIDs := make([]uuid.UUID, 0, len(assigns))
	for _, a := range assigns {
		ruleIDs = append(ruleIDs, a.RuleID)
	}
	rules, err := u.deps.Rules.GetByIDs(dbc, ruleIDs)
	if err != nil {
		return nil, err
	}
	ruleByID := make(map[uuid.UUID]*gold.MappingRule, len(rules))
	for _, r := range rules {
		ruleByID[r.ID] = r
	}

	var masterTypes []int64
	gate := map[string]*gold.MappingRule{}
	for _, a := range assigns {
		r := ruleByID[a.RuleID]
		if r == nil || !r.Enabled {
			continue
		}
		masterTypes = append(masterTypes, a.MasterNodeTypeID)
		for _, s := range strategiesForCommand(r.Command) {
			if gate[s] == nil {
				gate[s] = r
			}
		}
	}

	plan.pool = newTypePool(ix, masterTypes)
	if r := gate[StrategyExact]; r != nil {
		plan.steps = append(plan.steps, cascadeStep{name: StrategyExact, rule: r, run: matchExact})
	}
	if r := gate[StrategyNLP]; r != nil {
		plan.steps = append(plan.steps, cascadeStep{name: StrategyNLP, rule: r, run: matchNLP})
	}
	if r := gate[StrategyFuzzy]; r != nil {
		plan.steps = append(plan.steps, cascadeStep{name: StrategyFuzzy, rule: r, run: matchFuzzy})
	}
	if r := gate[StrategySemantic]; r != nil && semantic != nil {
		plan.steps = append(plan.steps, cascadeStep{name: StrategySemantic, rule: r, run: semantic})
	}
	return plan, nil
}

// ensureDefaultAssignments binds the enabled default rules to a type pair
// for a child type that arrives with no cascade configured. The master side
// is the same node type when the master tree has candidates of it, else the
// master's deepest type (customer flat lists land on the profession level).
func (u Usecases) ensureDefaultAssignments(dbc dbctx.Context, ix *masterIndex, childTypeID int64, actor string) ([]*gold.MappingRuleAssignment, error) {
	masterTypeID := childTypeID
	if len(ix.byType[masterTypeID]) == 0 {
		masterTypeID = ix.deepestTypeID()
	}
	if masterTypeID == 0 {
		return nil, nil
	}
	rules, err := u.deps.Rules.ListEnabled(dbc)
	if err != nil {
		return nil, err
	}
	byCommand := map[string]*gold.MappingRule{}
	for _, r := range rules {
		if byCommand[r.Command] == nil {
			byCommand[r.Command] = r
		}
	}

	var rows []*gold.MappingRuleAssignment
	priority := 0
	for _, cmd := range []string{gold.RuleCommandEquals, gold.RuleCommandContains, gold.RuleCommandRegex, gold.RuleCommandAI} {
		r := byCommand[cmd]
		if r == nil {
			continue
		}
		rows = append(rows, &gold.MappingRuleAssignment{
			ID:               uuid.New(),
			RuleID:           r.ID,
			MasterNodeTypeID: masterTypeID,
			ChildNodeTypeID:  childTypeID,
			Priority:         priority,
		})
		priority++
	}
	if len(rows) == 0 {
		return nil, nil
	}

	err = u.deps.DB.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := u.deps.Assignments.Ensure(txc, rows); err != nil {
			return err
		}
		entries := make([]*auditdom.AuditLog, 0, len(rows))
		for _, row := range rows {
			raw, err := json.Marshal(row)
			if err != nil {
				return err
			}
			entries = append(entries, &auditdom.AuditLog{
				EntityTable: gold.MappingRuleAssignment{}.TableName(),
				EntityID:    row.ID.String(),
				Operation:   auditdom.OpInsert,
				NewRow:      datatypes.JSON(raw),
				Actor:       actor,
				OccurredAt:  time.Now().UTC(),
			})
		}
		return u.deps.Audit.Append(txc, entries)
	})
	if err != nil {
		return nil, err
	}
	u.deps.Log.Info("Created default rule assignments for node type",
		"child_node_type_id", childTypeID, "master_node_type_id", masterTypeID, "rules", len(rows))
	return u.deps.Assignments.ListByChildType(dbc, childTypeID)
}
