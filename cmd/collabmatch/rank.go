// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Run a ranking sweep over all researchers",
	Long: `Rank embeds anything still pending, scores researcher pairs and
writes the top opportunities. Dismissed pairs stay hidden until their
cooldown expires.

Use --dry-run to print the opportunities a sweep would write.`,
	RunE: runRank,
}

func init() {
	rankCmd.Flags().Bool("dry-run", false, "print drafts without writing")
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Process(ctx, nil); err != nil {
		return err
	}

	if !dryRun {
		summary, err := e.Rank(ctx)
		if err != nil {
			return err
		}
		summary.Print(os.Stdout)
		return nil
	}

	drafts, summary, err := e.Preview(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%-6s  %-30s  %-30s  %s\n", "Score", "Pair", "Topic", "Reason")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, d := range drafts {
		fmt.Fprintf(os.Stdout, "%6.2f  %-30s  %-30s  %s\n",
			d.MatchScore, truncate(d.Pair.Key(), 30), truncate(d.Topic, 30), d.Reason)
	}
	fmt.Fprintln(os.Stdout)
	summary.Print(os.Stdout)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
