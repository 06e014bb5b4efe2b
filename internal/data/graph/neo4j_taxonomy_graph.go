// Package graph projects taxonomy trees into Neo4j for read-side traversal.
// The projection is derived data: Postgres stays the source of truth and a
// lost graph is rebuilt by re-running the projection.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
	"github.com/carelattice/taxonomy-backend/internal/platform/neo4jdb"
)

// TaxonomyGraph mirrors one taxonomy per run: the taxonomy vertex, its
// visible nodes, CHILD_OF edges, and for customer taxonomies the active
// MAPS_TO edges onto master nodes. Master nodes referenced by mappings are
// merged as id-only stubs and enriched when the master itself is projected.
type TaxonomyGraph struct {
	client     *neo4jdb.Client
	log        *logger.Logger
	taxonomies repos.TaxonomyRepo
	nodeTypes  repos.NodeTypeRepo
	nodes      repos.NodeRepo
	mappings   repos.MappingRepo
}

func NewTaxonomyGraph(
	client *neo4jdb.Client,
	baseLog *logger.Logger,
	taxonomies repos.TaxonomyRepo,
	nodeTypes repos.NodeTypeRepo,
	nodes repos.NodeRepo,
	mappings repos.MappingRepo,
) *TaxonomyGraph {
	return &TaxonomyGraph{
		client:     client,
		log:        baseLog.With("service", "TaxonomyGraph"),
		taxonomies: taxonomies,
		nodeTypes:  nodeTypes,
		nodes:      nodes,
		mappings:   mappings,
	}
}

// ProjectTaxonomy rewrites the graph view of one taxonomy from the current
// Postgres state. Rows from earlier projections that the tree no longer
// contains fall out by sync stamp.
func (g *TaxonomyGraph) ProjectTaxonomy(ctx context.Context, taxonomyID int64) error {
	if g == nil || g.client == nil || g.client.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	dbc := dbctx.Context{Ctx: ctx}

	tax, err := g.taxonomies.GetByID(dbc, taxonomyID)
	if err != nil {
		return err
	}
	if tax == nil {
		return fmt.Errorf("taxonomy %d: %w", taxonomyID, pkgerrors.ErrNotFound)
	}

	nodes, err := g.nodes.GetVisibleByTaxonomy(dbc, taxonomyID)
	if err != nil {
		return err
	}
	typeNames, err := g.nodeTypeNames(dbc)
	if err != nil {
		return err
	}

	syncedAt := time.Now().UTC().UnixMilli()

	taxProps := map[string]any{
		"id":              tax.ID,
		"customer_id":     tax.CustomerID,
		"name":            tax.Name,
		"kind":            tax.TaxonomyKind,
		"status":          tax.Status,
		"current_version": int64(tax.CurrentVersion),
		"synced_at":       syncedAt,
	}

	nodeRows := make([]map[string]any, 0, len(nodes))
	childRels := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == 0 || n.TaxonomyID != taxonomyID {
			continue
		}
		profession := ""
		if n.Profession != nil {
			profession = *n.Profession
		}
		nodeRows = append(nodeRows, map[string]any{
			"id":           n.ID,
			"taxonomy_id":  n.TaxonomyID,
			"node_type_id": n.NodeTypeID,
			"node_type":    typeNames[n.NodeTypeID],
			"customer_id":  n.CustomerID,
			"value":        n.Value,
			"value_key":    n.ValueKey,
			"profession":   profession,
			"level":        int64(n.Level),
			"status":       n.Status,
			"is_na":        n.IsNA(),
			"created_at":   n.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updated_at":   n.UpdatedAt.UTC().Format(time.RFC3339Nano),
			"synced_at":    syncedAt,
		})
		if n.ParentNodeID != nil && *n.ParentNodeID != 0 {
			childRels = append(childRels, map[string]any{
				"child_id":  n.ID,
				"parent_id": *n.ParentNodeID,
				"synced_at": syncedAt,
			})
		}
	}

	mapRels, err := g.mappingRels(dbc, tax, nodes, syncedAt)
	if err != nil {
		return err
	}

	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	{
		stmts := []string{
			`CREATE CONSTRAINT taxonomy_id_unique IF NOT EXISTS FOR (t:Taxonomy) REQUIRE t.id IS UNIQUE`,
			`CREATE CONSTRAINT taxonomy_node_id_unique IF NOT EXISTS FOR (n:TaxonomyNode) REQUIRE n.id IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				g.log.Warn("neo4j schema init failed (continuing)", "error", err)
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := runConsume(ctx, tx, `
MERGE (t:Taxonomy {id: $tax.id})
SET t += $tax
`, map[string]any{"tax": taxProps}); err != nil {
			return nil, err
		}

		if len(nodeRows) > 0 {
			if err := runConsume(ctx, tx, `
UNWIND $nodes AS n
MERGE (tn:TaxonomyNode {id: n.id})
SET tn += n
WITH tn
MATCH (t:Taxonomy {id: $taxonomy_id})
MERGE (tn)-[e:IN_TAXONOMY]->(t)
SET e.synced_at = $synced_at
`, map[string]any{"nodes": nodeRows, "taxonomy_id": taxonomyID, "synced_at": syncedAt}); err != nil {
				return nil, err
			}
		}

		if len(childRels) > 0 {
			if err := runConsume(ctx, tx, `
UNWIND $rels AS r
MATCH (c:TaxonomyNode {id: r.child_id})
MATCH (p:TaxonomyNode {id: r.parent_id})
MERGE (c)-[e:CHILD_OF]->(p)
SET e.synced_at = r.synced_at
`, map[string]any{"rels": childRels}); err != nil {
				return nil, err
			}
		}

		if len(mapRels) > 0 {
			if err := runConsume(ctx, tx, `
UNWIND $rels AS r
MERGE (m:TaxonomyNode {id: r.master_id})
WITH m, r
MATCH (c:TaxonomyNode {id: r.child_id})
MERGE (c)-[e:MAPS_TO]->(m)
SET e.mapping_id = r.mapping_id,
    e.confidence = r.confidence,
    e.status = r.status,
    e.synced_at = r.synced_at
`, map[string]any{"rels": mapRels}); err != nil {
				return nil, err
			}
		}

		// Nodes and edges this run did not touch are no longer part of the tree.
		if err := runConsume(ctx, tx, `
MATCH (n:TaxonomyNode {taxonomy_id: $taxonomy_id})
WHERE n.synced_at < $synced_at
DETACH DELETE n
`, map[string]any{"taxonomy_id": taxonomyID, "synced_at": syncedAt}); err != nil {
			return nil, err
		}
		if err := runConsume(ctx, tx, `
MATCH (c:TaxonomyNode {taxonomy_id: $taxonomy_id})-[e:MAPS_TO]->()
WHERE e.synced_at < $synced_at
DELETE e
`, map[string]any{"taxonomy_id": taxonomyID, "synced_at": syncedAt}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	g.log.Info("projected taxonomy graph",
		"taxonomy_id", taxonomyID,
		"kind", tax.TaxonomyKind,
		"nodes", len(nodeRows),
		"child_edges", len(childRels),
		"mapping_edges", len(mapRels))
	return nil
}

func (g *TaxonomyGraph) nodeTypeNames(dbc dbctx.Context) (map[int64]string, error) {
	types, err := g.nodeTypes.List(dbc)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(types))
	for _, nt := range types {
		if nt != nil {
			out[nt.ID] = nt.Name
		}
	}
	return out, nil
}

// mappingRels builds MAPS_TO payloads for a customer taxonomy's visible
// mappable nodes. The master carries no outgoing mappings.
func (g *TaxonomyGraph) mappingRels(dbc dbctx.Context, tax *silver.Taxonomy, nodes []*silver.TaxonomyNode, syncedAt int64) ([]map[string]any, error) {
	if tax.IsMaster() || len(nodes) == 0 {
		return nil, nil
	}
	childIDs := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		if n != nil && n.ID != 0 && !n.IsNA() {
			childIDs = append(childIDs, n.ID)
		}
	}
	if len(childIDs) == 0 {
		return nil, nil
	}
	mappings, err := g.mappings.GetActiveByChildNodes(dbc, childIDs)
	if err != nil {
		return nil, err
	}
	rels := make([]map[string]any, 0, len(mappings))
	for _, m := range mappings {
		if m == nil || m.ChildNodeID == 0 || m.MasterNodeID == 0 {
			continue
		}
		rels = append(rels, map[string]any{
			"mapping_id": m.ID.String(),
			"child_id":   m.ChildNodeID,
			"master_id":  m.MasterNodeID,
			"confidence": int64(m.Confidence),
			"status":     m.Status,
			"synced_at":  syncedAt,
		})
	}
	return rels, nil
}

func runConsume(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}
