package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/stager"
)

var (
	stageTenantID string
	stageSlug     string
	stageFile     string
)

var stageCsvCmd = &cobra.Command{
	Use:   "stage-csv",
	Short: "Stage a CSV file as a new batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("stage"); err != nil {
			return err
		}
		if stageTenantID == "" || stageSlug == "" || stageFile == "" {
			return eris.New("stage-csv: --tenant, --source, and --file are required")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{staging: true})
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(stageFile)
		if err != nil {
			return eris.Wrap(err, "stage-csv: read file")
		}

		result, err := env.Stager.Stage(ctx, stageTenantID, stageSlug, stageFile, data, stager.Origin{"channel": "cli"})
		if err != nil {
			return eris.Wrap(err, "stage-csv: stage file")
		}

		zap.L().Info("stage-csv: staged",
			zap.String("batch_id", result.Batch.ID),
			zap.Bool("deduplicated", result.Deduplicated))
		return nil
	},
}

func init() {
	stageCsvCmd.Flags().StringVar(&stageTenantID, "tenant", "", "tenant id")
	stageCsvCmd.Flags().StringVar(&stageSlug, "source", "", "lead source slug")
	stageCsvCmd.Flags().StringVar(&stageFile, "file", "", "path to the CSV file")
	rootCmd.AddCommand(stageCsvCmd)
}
