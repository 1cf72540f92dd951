package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyerfyer/esg-insight/internal/document"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index [index-id] [files...]",
	Short: "Build a retrieval index from report files",
	Long: `Extracts the text of every file, splits it into overlapping windows and
replaces the named index with their embeddings.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	indexID, files := args[0], args[1:]

	docs := make([]document.Document, 0, len(files))
	for _, path := range files {
		text, err := readReport(path)
		if err != nil {
			return err
		}
		docs = append(docs, document.Document{Text: text, SourceID: filepath.Base(path)})
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Retrieval.BuildIndex(cmd.Context(), docs, indexID)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), info)
	}
	cmd.Printf("Indexed %d chunks from %d files into %q (model %s, dim %d)\n",
		info.ChunkCount, len(files), info.IndexID, info.Model, info.Dimension)
	return nil
}

func readReport(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	text, err := document.ExtractText(f, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	return text, nil
}
