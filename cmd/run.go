package main

import (
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadpipeline/leadpipe/internal/queue"
)

var runTenantID string
var runBatchSize int
var runIncremental bool
var runCrmConcurrency int

var errRequiredTenant = eris.New("run: --tenant is required")

var runParserCmd = &cobra.Command{
	Use:   "run-parser",
	Short: "Claim and parse one batch of pending uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("stage"); err != nil {
			return err
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{staging: true})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := queue.RunOnce(ctx, zap.L(), env.Parser.Claim, env.Parser.Handle, batchSize())
		if err != nil {
			return err
		}
		zap.L().Info("run-parser: done", zap.Int("claimed", n))
		return nil
	},
}

var runTransformerCmd = &cobra.Command{
	Use:   "run-transformer",
	Short: "Claim and transform one batch of parsed uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("transform"); err != nil {
			return err
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{transforming: true, matching: true})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := queue.RunOnce(ctx, zap.L(), env.Transformer.Claim, env.Transformer.Handle, batchSize())
		if err != nil {
			return err
		}
		zap.L().Info("run-transformer: done", zap.Int("claimed", n))
		return nil
	},
}

var runMatcherCmd = &cobra.Command{
	Use:   "run-matcher",
	Short: "Claim and match one batch of pending canonical leads for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		if runTenantID == "" {
			return errRequiredTenant
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{matching: true})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := queue.RunOnce(ctx, zap.L(), env.Matcher.ClaimForTenant(runTenantID), env.Matcher.Handle, batchSize())
		if err != nil {
			return err
		}
		zap.L().Info("run-matcher: done", zap.Int("claimed", n))
		return nil
	},
}

var runEmbeddingsCmd = &cobra.Command{
	Use:   "run-embeddings",
	Short: "Claim and embed one batch of pending embedding tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("embed"); err != nil {
			return err
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{embedding: true})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Embedder.Run(ctx, batchSize())
		if err != nil {
			return err
		}
		zap.L().Info("run-embeddings: done", zap.Int("claimed", n))
		return nil
	},
}

var runCrmSyncCmd = &cobra.Command{
	Use:   "run-crm-sync",
	Short: "Pull every active CRM connection for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("crmsync"); err != nil {
			return err
		}
		if runTenantID == "" {
			return errRequiredTenant
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{crmSync: true})
		if err != nil {
			return err
		}
		defer env.Close()

		conns, err := env.Store.ListActiveCrmConnections(ctx, runTenantID)
		if err != nil {
			return err
		}

		// Connections are independent CRM accounts; pulling them
		// concurrently keeps a tenant with many connections from
		// waiting on one slow one at a time, bounded so a large tenant
		// doesn't open dozens of CRM sessions at once.
		var failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runCrmConcurrency)
		for _, conn := range conns {
			conn := conn
			g.Go(func() error {
				log, err := env.Puller.Sync(gctx, conn, runIncremental)
				if err != nil {
					failed.Add(1)
					zap.L().Error("run-crm-sync: connection failed", zap.String("crm_connection_id", conn.ID), zap.Error(err))
					return nil
				}
				zap.L().Info("run-crm-sync: connection done",
					zap.String("crm_connection_id", conn.ID),
					zap.String("status", string(log.Status)),
					zap.Int("fetched", log.Fetched))
				return nil
			})
		}
		_ = g.Wait()
		if n := failed.Load(); n > 0 {
			zap.L().Warn("run-crm-sync: some connections failed", zap.Int64("failed", n), zap.Int("total", len(conns)))
		}
		return nil
	},
}

func batchSize() int {
	if runBatchSize > 0 {
		return runBatchSize
	}
	return cfg.Worker.BatchSize
}

func init() {
	for _, c := range []*cobra.Command{runParserCmd, runTransformerCmd, runMatcherCmd, runEmbeddingsCmd, runCrmSyncCmd} {
		c.Flags().IntVar(&runBatchSize, "batch-size", 0, "override the configured worker batch size")
		rootCmd.AddCommand(c)
	}
	runMatcherCmd.Flags().StringVar(&runTenantID, "tenant", "", "tenant id")
	runCrmSyncCmd.Flags().StringVar(&runTenantID, "tenant", "", "tenant id")
	runCrmSyncCmd.Flags().BoolVar(&runIncremental, "incremental", true, "only pull records updated since the last sync")
	runCrmSyncCmd.Flags().IntVar(&runCrmConcurrency, "concurrency", 4, "max CRM connections to pull concurrently")
}
