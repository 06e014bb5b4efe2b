package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/app"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

type idList []int64

func (l *idList) String() string {
	parts := make([]string, 0, len(*l))
	for _, id := range *l {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func (l *idList) Set(v string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("taxonomy id %q: %w", v, err)
	}
	*l = append(*l, id)
	return nil
}

// Enqueues taxonomy_remap jobs by hand, for taxonomies whose version-driven
// remap failed or was skipped. With no -taxonomy flags it targets every
// active customer taxonomy.
func main() {
	var taxonomies idList
	var dryRun bool
	var promote bool
	flag.Var(&taxonomies, "taxonomy", "taxonomy id to remap (repeatable)")
	flag.BoolVar(&dryRun, "dry-run", false, "print planned jobs without enqueueing")
	flag.BoolVar(&promote, "promote", false, "also enqueue a mapping_promote job")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	var rows []*silver.Taxonomy
	if len(taxonomies) > 0 {
		rows, err = application.Repos.Taxonomies.GetByIDs(dbc, taxonomies)
	} else {
		rows, err = application.Repos.Taxonomies.ListActiveCustomerTaxonomies(dbc)
	}
	if err != nil {
		fmt.Printf("load taxonomies: %v\n", err)
		os.Exit(1)
	}

	enqueued := 0
	for _, tax := range rows {
		if tax == nil {
			continue
		}
		if tax.IsMaster() {
			fmt.Printf("skip %d: master taxonomy is a mapping target, not a source\n", tax.ID)
			continue
		}
		refID := strconv.FormatInt(tax.ID, 10)
		if dryRun {
			fmt.Printf("would enqueue taxonomy_remap ref=%s (%s)\n", refID, tax.Name)
			continue
		}
		run, err := application.Services.Enqueuer.EnqueueOnce(ctx, jobs.KindTaxonomyRemap, refID, map[string]any{
			"taxonomy_id": tax.ID,
			"reason":      "manual remap",
		})
		if err != nil {
			fmt.Printf("enqueue remap for %d: %v\n", tax.ID, err)
			os.Exit(1)
		}
		if run == nil {
			fmt.Printf("taxonomy %d already has a runnable remap job\n", tax.ID)
			continue
		}
		fmt.Printf("enqueued taxonomy_remap %s ref=%s\n", run.ID, refID)
		enqueued++
	}

	if promote && !dryRun {
		run, err := application.Services.Enqueuer.EnqueueOnce(ctx, jobs.KindMappingPromote, jobs.PromoteRefID, nil)
		if err != nil {
			fmt.Printf("enqueue promote: %v\n", err)
			os.Exit(1)
		}
		if run != nil {
			fmt.Printf("enqueued mapping_promote %s\n", run.ID)
		}
	}

	fmt.Printf("done: %d remap job(s) enqueued across %d taxonomy(ies)\n", enqueued, len(rows))
}
