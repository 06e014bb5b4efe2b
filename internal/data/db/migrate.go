package db

import (
	"fmt"

	"gorm.io/gorm"

	auditdom "github.com/carelattice/taxonomy-backend/internal/domain/audit"
	bronzedom "github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	golddom "github.com/carelattice/taxonomy-backend/internal/domain/gold"
	jobsdom "github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	silverdom "github.com/carelattice/taxonomy-backend/internal/domain/silver"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Bronze (raw intake)
		// =========================
		&bronzedom.Load{},
		&bronzedom.LoadRow{},

		// =========================
		// Silver (canonical trees)
		// =========================
		&silverdom.Taxonomy{},
		&silverdom.NodeType{},
		&silverdom.AttributeType{},
		&silverdom.TaxonomyNode{},
		&silverdom.NodeAttribute{},
		&silverdom.TaxonomyVersion{},

		// =========================
		// Gold (mappings + production projection)
		// =========================
		&golddom.MappingRule{},
		&golddom.MappingRuleAssignment{},
		&golddom.Mapping{},
		&golddom.MappingVersion{},
		&golddom.ProductionMapping{},

		// =========================
		// Audit + background work
		// =========================
		&auditdom.AuditLog{},
		&jobsdom.JobRun{},
	)
}

func EnsureBronzeIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_bronze_load_taxonomy_status ON bronze_load(taxonomy_id, status);`).Error; err != nil {
		return fmt.Errorf("create idx_bronze_load_taxonomy_status: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_bronze_load_row_load_status ON bronze_load_row(load_id, status);`).Error; err != nil {
		return fmt.Errorf("create idx_bronze_load_row_load_status: %w", err)
	}
	return nil
}

func EnsureSilverIndexes(db *gorm.DB) error {
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}
	// Dictionary identity lives in the folded name. Non-partial on purpose:
	// ON CONFLICT (name_key) needs the full index for inference.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_silver_node_type_name_key ON silver_node_type(name_key);`).Error; err != nil {
		return fmt.Errorf("create idx_silver_node_type_name_key: %w", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_silver_attribute_type_name_key ON silver_attribute_type(name_key);`).Error; err != nil {
		return fmt.Errorf("create idx_silver_attribute_type_name_key: %w", err)
	}
	// The node natural key. COALESCE folds the null parent of roots to 0 so
	// uniqueness holds there too (node ids start at 1, so 0 is never a real
	// parent). Upserts target this exact expression list.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_silver_nodes_natural_key
		ON silver_taxonomy_nodes(taxonomy_id, node_type_id, customer_id, COALESCE(parent_node_id, 0), value_key);
	`).Error; err != nil {
		return fmt.Errorf("create idx_silver_nodes_natural_key: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_silver_nodes_taxonomy_value_key
		ON silver_taxonomy_nodes(taxonomy_id, value_key);
	`).Error; err != nil {
		return fmt.Errorf("create idx_silver_nodes_taxonomy_value_key: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_silver_node_attributes_natural_key
		ON silver_node_attributes(node_id, attribute_type_id, value_key);
	`).Error; err != nil {
		return fmt.Errorf("create idx_silver_node_attributes_natural_key: %w", err)
	}
	// Backstop for the advisory-lock protocol: the database itself refuses a
	// second open interval per taxonomy.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_silver_versions_one_open
		ON silver_taxonomy_versions(taxonomy_id)
		WHERE version_to_date IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_silver_versions_one_open: %w", err)
	}
	return nil
}

func EnsureGoldIndexes(db *gorm.DB) error {
	// A child node carries at most one active mapping; a (master, child) pair
	// at most one active row. Supersession deactivates before it inserts, so
	// these partials never see two active rows.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_gold_mappings_one_active_child
		ON gold_mappings(child_node_id)
		WHERE is_active = TRUE AND deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_gold_mappings_one_active_child: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_gold_mappings_active_pair
		ON gold_mappings(master_node_id, child_node_id)
		WHERE is_active = TRUE AND deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_gold_mappings_active_pair: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_gold_mappings_status ON gold_mappings(status) WHERE is_active = TRUE;`).Error; err != nil {
		return fmt.Errorf("create idx_gold_mappings_status: %w", err)
	}
	return nil
}

func EnsureJobIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_job_runs_claim ON job_runs(status, created_at);`).Error; err != nil {
		return fmt.Errorf("create idx_job_runs_claim: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_job_runs_kind_ref ON job_runs(kind, ref_id);`).Error; err != nil {
		return fmt.Errorf("create idx_job_runs_kind_ref: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureBronzeIndexes(s.db); err != nil {
		s.log.Error("Bronze index migration failed", "error", err)
		return err
	}
	if err := EnsureSilverIndexes(s.db); err != nil {
		s.log.Error("Silver index migration failed", "error", err)
		return err
	}
	if err := EnsureGoldIndexes(s.db); err != nil {
		s.log.Error("Gold index migration failed", "error", err)
		return err
	}
	if err := EnsureJobIndexes(s.db); err != nil {
		s.log.Error("Job index migration failed", "error", err)
		return err
	}
	return nil
}
