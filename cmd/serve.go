package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadpipeline/leadpipe/internal/embedqueue"
	"github.com/leadpipeline/leadpipe/internal/httpapi"
	"github.com/leadpipeline/leadpipe/internal/queue"
)

var servePort int
var serveWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{
			staging: true, transforming: true, matching: true,
			embedding: true, crmSync: true, review: true,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		handlers := &httpapi.Handlers{
			Stager:      env.Stager,
			Transformer: env.Transformer,
			Matcher:     env.Matcher,
			Embedder:    env.Embedder,
			Puller:      env.Puller,
			Resolver:    env.Resolver,
			Connections: env.Store,
			Logger:      zap.L(),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := httpapi.New(fmt.Sprintf(":%d", port), handlers, zap.L())

		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			_ = srv.Stop(cmd.Context())
		}()

		if serveWorkers {
			startWorkerLoops(ctx, env)
		}

		if err := srv.Start(); err != nil {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

// startWorkerLoops launches a continuous-polling goroutine per
// tenant-agnostic worker, for local/dev runs that don't want a
// separate run-* invocation per stage. The matcher and CRM puller are
// excluded: both require a tenant id per claim
// (Matcher.ClaimForTenant, crmsync.Puller.Sync's per-connection call)
// and this process has no way to enumerate every tenant on its own, so
// they stay single-shot run-matcher/run-crm-sync subcommands, driven
// per tenant by an external scheduler.
func startWorkerLoops(ctx context.Context, env *pipelineEnv) {
	interval := time.Duration(cfg.Worker.PollIntervalSecs) * time.Second
	g, gctx := errgroup.WithContext(ctx)

	if env.Parser != nil {
		g.Go(func() error {
			queue.RunLoop(gctx, zap.L(), interval, cfg.Worker.BatchSize, env.Parser.Claim, env.Parser.Handle)
			return nil
		})
	}
	if env.Transformer != nil {
		g.Go(func() error {
			queue.RunLoop(gctx, zap.L(), interval, cfg.Worker.BatchSize, env.Transformer.Claim, env.Transformer.Handle)
			return nil
		})
	}
	if env.Embedder != nil {
		g.Go(func() error {
			runEmbedderLoop(gctx, env.Embedder, interval, cfg.Worker.BatchSize)
			return nil
		})
	}

	zap.L().Info("serve: continuous worker loops started", zap.Duration("interval", interval))
	go func() {
		_ = g.Wait()
	}()
}

// runEmbedderLoop polls the embedding worker on interval. It doesn't
// use queue.RunLoop: the embedder batches its whole claim into one
// provider request via Run instead of handling items one at a time, so
// it doesn't fit ClaimFunc/HandleFunc's per-item shape.
func runEmbedderLoop(ctx context.Context, w *embedqueue.Worker, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Run(ctx, batchSize)
			if err != nil && ctx.Err() == nil {
				zap.L().Error("serve: embedder loop failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Debug("serve: embedder loop processed batch", zap.Int("count", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveWorkers, "workers", false, "also run continuous parser/transformer/embedder loops in this process")
	rootCmd.AddCommand(serveCmd)
}
