package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fyerfyer/esg-insight/api/middleware"
	"github.com/fyerfyer/esg-insight/config"
	"github.com/fyerfyer/esg-insight/internal/app"
	"github.com/spf13/cobra"
)

var (
	configFile string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "esgctl",
	Short: "Score ESG reports and ask questions about them",
	Long: `esgctl scores sustainability report text by Environmental, Social and
Governance keyword occurrences, builds retrieval indexes from report files
and answers questions grounded in those indexes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp 加载配置并装配服务，未配置日志文件时日志写到标准错误
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := middleware.ConfigureLogger(middleware.LogOptions{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if cfg.Log.File == "" {
		logger.SetOutput(cmd.ErrOrStderr())
	}
	return app.New(cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
