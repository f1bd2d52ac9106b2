// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/collabmatch/internal/engine"
	"github.com/pdiddy/collabmatch/internal/ingest"
	"github.com/pdiddy/collabmatch/internal/sdg"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Import researchers and publications from a YAML or CSV dataset",
	Long: `Ingest reads a dataset and writes researchers, publications and
collaboration edges to the database. Unchanged records are skipped, so
re-running ingest only re-embeds what changed. Publications without SDG
tags are tagged by keyword.

YAML datasets list researchers, publications and optional collaborations.
CSV files need the columns Title, Authors, Abstract, Year and Department.

Use --rank to run a ranking sweep once embeddings are up to date.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("rank", false, "run a ranking sweep after embedding")
	ingestCmd.Flags().Bool("dry-run", false, "report changes without writing")
	ingestCmd.Flags().Float64("sdg-threshold", sdg.DefaultThreshold, "keyword match ratio needed to tag a publication with an SDG")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doRank, _ := cmd.Flags().GetBool("rank")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	threshold, _ := cmd.Flags().GetFloat64("sdg-threshold")

	ds, err := ingest.LoadFile(args[0])
	if err != nil {
		return err
	}

	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	opts := ingest.Options{SDGThreshold: threshold, DryRun: dryRun}
	if dryRun {
		_, err := ingest.Ingest(ctx, e.Store(), ds, os.Stdout, opts)
		return err
	}

	var summary ingest.Summary
	err = e.Process(ctx, func(ctx context.Context) error {
		var err error
		summary, err = ingest.Ingest(ctx, e.Store(), ds, os.Stdout, opts)
		if err != nil {
			return err
		}
		return scheduleChanges(ctx, e, summary.Changes)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "embedded %d changed record(s)\n", len(summary.Changes))

	if doRank {
		rs, err := e.Rank(ctx)
		if err != nil {
			return err
		}
		rs.Print(os.Stdout)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record(s) failed ingestion", summary.Failed)
	}
	return nil
}

func scheduleChanges(ctx context.Context, e *engine.Engine, changes []ingest.Change) error {
	for _, c := range changes {
		if _, err := e.EntityChanged(ctx, c.Ref.Type, c.Ref.ID, c.Fields); err != nil {
			return fmt.Errorf("scheduling %s: %w", c.Ref, err)
		}
	}
	return nil
}
