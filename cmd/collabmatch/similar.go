// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/collabmatch/internal/engine"
)

var similarCmd = &cobra.Command{
	Use:   "similar [text]",
	Short: "Find researchers or publications similar to a text",
	Long: `Similar embeds the query text and lists the closest researchers,
optionally limited to one department.

With --publications-for, it instead lists publications close to that
researcher's interests, excluding the researcher's own work. With
--alignment-for, it scores how well the text fits that researcher.`,
	RunE: runSimilar,
}

func init() {
	similarCmd.Flags().Int("top-k", 10, "maximum number of results")
	similarCmd.Flags().String("department", "", "only list researchers in this department")
	similarCmd.Flags().String("publications-for", "", "researcher id to recommend publications for")
	similarCmd.Flags().String("alignment-for", "", "researcher id to score the text against")
	similarCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	topK, _ := cmd.Flags().GetInt("top-k")
	department, _ := cmd.Flags().GetString("department")
	pubsFor, _ := cmd.Flags().GetString("publications-for")
	alignFor, _ := cmd.Flags().GetString("alignment-for")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	text := strings.Join(args, " ")

	if pubsFor == "" && text == "" {
		return fmt.Errorf("query text required, or use --publications-for")
	}

	e, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	switch {
	case alignFor != "":
		score, err := e.AlignmentScore(ctx, alignFor, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "alignment %s: %.3f\n", alignFor, score)
		return nil

	case pubsFor != "":
		results, err := e.FindSimilarPublications(ctx, pubsFor, topK)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-4s  %-10s  %-20s  %s\n", "Rank", "Similarity", "ID", "Title")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
		for i, r := range results {
			fmt.Fprintf(os.Stdout, "%-4d  %10.3f  %-20s  %s\n",
				i+1, r.Similarity, truncate(r.Publication.ID, 20), truncate(r.Publication.Title, 50))
		}
		return nil
	}

	results, err := e.FindSimilar(ctx, text, topK, engine.SimilarFilter{Department: department})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(results)
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Fprintf(os.Stdout, "%-4s  %-10s  %-20s  %-25s  %s\n", "Rank", "Similarity", "ID", "Name", "Department")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for i, r := range results {
		fmt.Fprintf(os.Stdout, "%-4d  %10.3f  %-20s  %-25s  %s\n",
			i+1, r.Similarity, truncate(r.Researcher.ID, 20), truncate(r.Researcher.Name, 25), r.Researcher.Department)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
