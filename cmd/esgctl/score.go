package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyerfyer/esg-insight/internal/document"
	"github.com/fyerfyer/esg-insight/internal/scoring"
	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score a report by ESG keyword occurrences",
	Long: `Extracts the text of a PDF, Markdown or plain text report and
prints the Environmental, Social and Governance percentages.`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	text, err := document.ExtractText(f, filepath.Base(args[0]))
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}
	report, err := scoring.Score(text)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), report)
	}
	for _, c := range scoring.Categories {
		cmd.Printf("%-14s %6.2f%%  (%d matches)\n", c, report.Scores[c], report.Counts[c])
	}
	cmd.Printf("%-14s %d\n", "Total", report.Total)
	return nil
}
