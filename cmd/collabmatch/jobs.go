// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/collabmatch/pkg/types"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List embedding jobs",
	Long: `Jobs lists embedding jobs and their state. Use --state deadletter to
find entities whose embedding failed permanently, then rebuild them.`,
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stateNames, _ := cmd.Flags().GetStringSlice("state")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var states []types.JobState
	for _, s := range stateNames {
		st, err := types.ParseJobState(s)
		if err != nil {
			return err
		}
		states = append(states, st)
	}

	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	jobs, err := e.JobStatus(ctx, states...)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(jobs)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}
	fmt.Fprintf(os.Stdout, "%-36s  %-10s  %-8s  %-20s  %s\n", "Entity", "State", "Attempts", "Updated", "Error")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, j := range jobs {
		fmt.Fprintf(os.Stdout, "%-36s  %-10s  %-8d  %-20s  %s\n",
			truncate(j.Ref.String(), 36), j.State, j.Attempts, j.UpdatedAt.Local().Format(time.DateTime), j.LastError)
	}
	return nil
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild TYPE ID",
	Short: "Recompute an entity's embedding",
	Long: `Rebuild re-embeds one researcher or publication even when its text
is unchanged, clearing a dead-lettered job. TYPE is researcher or
publication.`,
	Args: cobra.ExactArgs(2),
	RunE: runRebuild,
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	err = e.Process(ctx, func(ctx context.Context) error {
		return e.TriggerRebuild(ctx, types.EntityType(args[0]), args[1])
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "rebuilt %s/%s\n", args[0], args[1])
	return nil
}

func init() {
	jobsCmd.Flags().StringSlice("state", nil, "filter by state: queued, running, done, failed, deadletter")
	jobsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(jobsCmd, rebuildCmd)
}
