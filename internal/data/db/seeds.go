package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	golddom "github.com/carelattice/taxonomy-backend/internal/domain/gold"
	silverdom "github.com/carelattice/taxonomy-backend/internal/domain/silver"
)

// Seed installs the reserved rows every environment relies on: the master
// taxonomy (id -1, owner "-1"), the N/A node type (id -1) used for gap
// placeholders, and the default mapping rules. Safe to run on every boot.
func Seed(db *gorm.DB) error {
	master := &silverdom.Taxonomy{
		ID:           silverdom.MasterTaxonomyID,
		CustomerID:   silverdom.MasterCustomerID,
		Name:         "Master Profession Taxonomy",
		TaxonomyKind: silverdom.TaxonomyKindMaster,
		Status:       silverdom.StatusActive,
	}
	if err := db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(master).Error; err != nil {
		return fmt.Errorf("seed master taxonomy: %w", err)
	}

	naType := &silverdom.NodeType{
		ID:      silverdom.NANodeTypeID,
		Name:    silverdom.NANodeValue,
		NameKey: "n/a",
		Status:  silverdom.StatusActive,
	}
	if err := db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(naType).Error; err != nil {
		return fmt.Errorf("seed n/a node type: %w", err)
	}

	for _, rule := range DefaultMappingRules() {
		if err := db.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).
			Create(rule).Error; err != nil {
			return fmt.Errorf("seed mapping rule %s: %w", rule.Name, err)
		}
	}
	return nil
}

// DefaultMappingRules is the rule set a fresh database starts with: one rule
// per cascade strategy plus the human override. Priorities order the cascade;
// assignments to type pairs are created on demand by the mapping engine.
func DefaultMappingRules() []*golddom.MappingRule {
	return []*golddom.MappingRule{
		{
			Name:    "Exact Match",
			Command: golddom.RuleCommandEquals,
			Enabled: true,
		},
		{
			Name:    "Qualifier Match",
			Command: golddom.RuleCommandContains,
			Enabled: true,
		},
		{
			Name:    "Fuzzy Match",
			Command: golddom.RuleCommandRegex,
			Enabled: true,
		},
		{
			Name:          "Semantic Match",
			Command:       golddom.RuleCommandAI,
			AIMappingFlag: true,
			Enabled:       true,
		},
		{
			Name:             "Human Override",
			Command:          golddom.RuleCommandHuman,
			HumanMappingFlag: true,
			Enabled:          true,
		},
	}
}

func (s *PostgresService) Seed() error {
	s.log.Info("Seeding reserved rows and default mapping rules...")
	if err := Seed(s.db); err != nil {
		s.log.Error("Seeding failed", "error", err)
		return err
	}
	return nil
}
