package main

import (
	"fmt"

	"github.com/fyerfyer/esg-insight/internal/services"
	"github.com/spf13/cobra"
)

var askMode string

var askCmd = &cobra.Command{
	Use:   "ask [index-id] [question]",
	Short: "Answer a question from an index",
	Long: `Retrieves the most similar report excerpts and answers from them. When
nothing relevant is found the answer falls back to a general search.`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show the latest ESG news",
	Args:  cobra.NoArgs,
	RunE:  runAlerts,
}

func init() {
	askCmd.Flags().StringVarP(&askMode, "mode", "m", string(services.ModeConcise), "answer mode (concise or detailed)")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(alertsCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	mode, err := services.ParseMode(askMode)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.Retrieval.Answer(cmd.Context(), nil, args[1], args[0], mode)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), ans)
	}
	cmd.Println(ans.Text)
	if len(ans.Sources) > 0 {
		cmd.Println()
		for i, src := range ans.Sources {
			cmd.Printf("  [%d] %s (%.2f)\n", i+1, src.SourceID, src.Score)
		}
	}
	return nil
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	alert, err := a.Alerts.Latest(cmd.Context())
	if err != nil {
		return fmt.Errorf("alerts failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), alert)
	}
	cmd.Println(alert.Text)
	return nil
}
