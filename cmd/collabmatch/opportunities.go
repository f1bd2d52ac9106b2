// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/collabmatch/pkg/types"
)

var opportunitiesCmd = &cobra.Command{
	Use:     "opportunities",
	Aliases: []string{"opps"},
	Short:   "List, dismiss, action and export collaboration opportunities",
}

// --- list subcommand ---

var oppListCmd = &cobra.Command{
	Use:   "list",
	Short: "List opportunities ranked by score",
	Long: `List prints opportunities ranked by match score. Pending
opportunities are listed by default; use --status for actioned or
dismissed ones.`,
	RunE: runOppList,
}

func runOppList(cmd *cobra.Command, args []string) error {
	f, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	e, err := openEngine(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer e.Close()

	opps, err := e.ListOpportunities(cmd.Context(), f)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(opps)
	}
	if len(opps) == 0 {
		fmt.Println("No opportunities found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-6s  %-30s  %-30s  %s\n", "ID", "Score", "Pair", "Topic", "Status")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 120))
	for _, o := range opps {
		fmt.Fprintf(os.Stdout, "%-36s  %6.2f  %-30s  %-30s  %s\n",
			o.ID, o.MatchScore, truncate(o.Pair.Key(), 30), truncate(o.Topic, 30), o.Status)
	}
	fmt.Fprintf(os.Stdout, "\n%d opportunities\n", len(opps))
	return nil
}

func filterFromFlags(cmd *cobra.Command) (types.OpportunityFilter, error) {
	var f types.OpportunityFilter
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		st, err := types.ParseOpportunityStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if v, _ := cmd.Flags().GetString("pair"); v != "" {
		p, err := types.ParsePair(v)
		if err != nil {
			return f, err
		}
		f.Pair = &p
	}
	f.MinScore, _ = cmd.Flags().GetFloat64("min-score")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f, nil
}

// --- dismiss / act subcommands ---

var oppDismissCmd = &cobra.Command{
	Use:   "dismiss ID",
	Short: "Dismiss a pending opportunity",
	Long: `Dismiss hides a pending opportunity. The same pair is not suggested
again until the cooldown window (match.cooldown_window) has passed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finalizeOpportunity(cmd, args[0], types.StatusDismissed)
	},
}

var oppActCmd = &cobra.Command{
	Use:   "act ID",
	Short: "Mark a pending opportunity as actioned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return finalizeOpportunity(cmd, args[0], types.StatusActioned)
	},
}

func finalizeOpportunity(cmd *cobra.Command, id string, status types.OpportunityStatus) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if status == types.StatusDismissed {
		err = e.Dismiss(ctx, id)
	} else {
		err = e.Act(ctx, id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s %s\n", status, id)
	return nil
}

// --- export subcommand ---

var oppExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export opportunities to YAML or JSON",
	Long: `Export writes the filtered opportunity list to FILE. The format
follows the extension: .json writes JSON, anything else YAML.`,
	Args: cobra.ExactArgs(1),
	RunE: runOppExport,
}

func runOppExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}

	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	path := args[0]
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = e.Store().ExportJSON(ctx, path, f)
	} else {
		err = e.Store().ExportYAML(ctx, path, f)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "exported opportunities to %s\n", path)
	return nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("status", "", "filter by status: pending, actioned, dismissed")
	cmd.Flags().Float64("min-score", 0, "minimum match score")
	cmd.Flags().String("pair", "", "filter by researcher pair (id:id)")
	cmd.Flags().Int("limit", 0, "maximum number of results (0 = all)")
}

func init() {
	addFilterFlags(oppListCmd)
	oppListCmd.Flags().Bool("json", false, "output as JSON")
	addFilterFlags(oppExportCmd)

	opportunitiesCmd.AddCommand(oppListCmd, oppDismissCmd, oppActCmd, oppExportCmd)
	rootCmd.AddCommand(opportunitiesCmd)
}
