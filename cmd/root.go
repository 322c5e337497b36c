// Command leadpipe runs the lead ingestion, matching, and CRM sync
// pipeline described in the module's design docs: stage uploaded CSVs,
// parse and transform them into canonical leads, match against a CRM
// mirror, and keep that mirror in sync.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadpipe",
	Short: "Lead ingestion, matching, and CRM sync pipeline",
	Long:  "Stages uploaded lead CSVs, normalizes and transforms them into canonical leads, matches them against a CRM mirror, and keeps that mirror synced.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
