package gold

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Rule commands. The strategy cascade runs in fixed order regardless of rule
// configuration; the commands assigned to a type pair select which strategies
// are enabled for it: equals gates exact matching, contains/startswith gate
// the qualifier matcher, regex gates fuzzy, AI gates the semantic matcher.
// Human marks operator-authored mappings the engine never supersedes.
const (
	RuleCommandEquals     = "equals"
	RuleCommandContains   = "contains"
	RuleCommandStartsWith = "startswith"
	RuleCommandRegex      = "regex"
	RuleCommandAI         = "AI"
	RuleCommandHuman      = "Human"
)

// MappingRule is a named matching strategy configuration.
type MappingRule struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name             string         `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Command          string         `gorm:"column:command;not null" json:"command"`
	Pattern          *string        `gorm:"column:pattern" json:"pattern,omitempty"`
	AttributeFilters datatypes.JSON `gorm:"column:attribute_filters;type:jsonb" json:"attribute_filters,omitempty"`
	Flags            *string        `gorm:"column:flags" json:"flags,omitempty"`
	AIMappingFlag    bool           `gorm:"column:ai_mapping_flag;not null;default:false" json:"ai_mapping_flag"`
	HumanMappingFlag bool           `gorm:"column:human_mapping_flag;not null;default:false" json:"human_mapping_flag"`
	Enabled          bool           `gorm:"column:enabled;not null;default:true" json:"enabled"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MappingRule) TableName() string { return "gold_mapping_rules" }

// MappingRuleAssignment binds a rule to a (master node type, child node type)
// pair with a cascade priority. Lower priority runs first.
type MappingRuleAssignment struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RuleID            uuid.UUID      `gorm:"type:uuid;column:rule_id;not null;index:idx_gold_rule_assignments_unique,unique,priority:1" json:"rule_id"`
	MasterNodeTypeID  int64          `gorm:"column:master_node_type_id;not null;index:idx_gold_rule_assignments_unique,unique,priority:2" json:"master_node_type_id"`
	ChildNodeTypeID   int64          `gorm:"column:child_node_type_id;not null;index:idx_gold_rule_assignments_unique,unique,priority:3" json:"child_node_type_id"`
	Priority          int            `gorm:"column:priority;not null;default:0" json:"priority"`
	CreatedAt         time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MappingRuleAssignment) TableName() string { return "gold_mapping_rule_assignments" }
