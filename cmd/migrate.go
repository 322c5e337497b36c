package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("migrate: schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
