// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/collabmatch/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill researcher profiles from OpenAlex",
	Long: `Enrich looks each researcher up by name in the OpenAlex author index
and stores their h-index and citation count. Researchers without recorded
interests get their leading research topics, and unassigned researchers
get a department guessed from their main field. Interest changes are
re-embedded before the command exits.

Set --mailto (or COLLABMATCH_ENRICH_MAILTO) to use the OpenAlex polite pool.`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().StringSlice("id", nil, "only enrich these researcher ids")
	enrichCmd.Flags().Bool("overwrite", false, "replace recorded interests with OpenAlex topics")
	enrichCmd.Flags().Int("max-interests", 5, "maximum topics taken as interests")
	enrichCmd.Flags().Duration("delay", 100*time.Millisecond, "pause between lookups")
	enrichCmd.Flags().String("mailto", "", "contact email sent to OpenAlex")
	enrichCmd.Flags().Bool("dry-run", false, "report changes without writing")
	_ = viper.BindPFlag("enrich.mailto", enrichCmd.Flags().Lookup("mailto"))
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ids, _ := cmd.Flags().GetStringSlice("id")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	maxInterests, _ := cmd.Flags().GetInt("max-interests")
	delay, _ := cmd.Flags().GetDuration("delay")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	src := &enrich.OpenAlex{
		Client:    &http.Client{Timeout: 30 * time.Second},
		Email:     viper.GetString("enrich.mailto"),
		UserAgent: "collabmatch/" + version,
	}
	opts := enrich.Options{
		IDs:          ids,
		Overwrite:    overwrite,
		MaxInterests: maxInterests,
		Delay:        delay,
		DryRun:       dryRun,
	}
	if dryRun {
		_, err := enrich.Enrich(ctx, e.Store(), src, os.Stdout, opts)
		return err
	}

	var summary enrich.Summary
	err = e.Process(ctx, func(ctx context.Context) error {
		var err error
		summary, err = enrich.Enrich(ctx, e.Store(), src, os.Stdout, opts)
		if err != nil {
			return err
		}
		return scheduleChanges(ctx, e, summary.Changes)
	})
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d researcher(s) failed enrichment", summary.Failed)
	}
	return nil
}
