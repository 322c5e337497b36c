package main

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/blob"
	"github.com/leadpipeline/leadpipe/internal/crmsync"
	"github.com/leadpipeline/leadpipe/internal/embedqueue"
	"github.com/leadpipeline/leadpipe/internal/matcher"
	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/review"
	"github.com/leadpipeline/leadpipe/internal/scorer"
	"github.com/leadpipeline/leadpipe/internal/stager"
	"github.com/leadpipeline/leadpipe/internal/store"
	"github.com/leadpipeline/leadpipe/internal/transform"
	"github.com/leadpipeline/leadpipe/pkg/embedprovider"
	"github.com/leadpipeline/leadpipe/pkg/followupboss"
)

// pipelineEnv holds every initialized client and component the
// subcommands need. Fields the current subcommand doesn't use are left
// nil rather than eagerly built, so e.g. "stage-csv" never needs CRM
// credentials.
type pipelineEnv struct {
	Store       *store.PostgresStore
	Blob        *blob.Store
	Stager      *stager.Stager
	Parser      *stager.Parser
	Transformer *transform.Transformer
	Matcher     *matcher.Matcher
	Embedder    *embedqueue.Worker
	Puller      *crmsync.Puller
	Resolver    *review.Resolver
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the database pool and runs migrations.
func initStore(ctx context.Context) (*store.PostgresStore, error) {
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initBlob builds the GCS-backed blob store used to persist raw
// uploads. It is nil when no bucket is configured, so subcommands that
// don't stage uploads never need a GCS client.
func initBlob(ctx context.Context, logger *zap.Logger) (*blob.Store, error) {
	if cfg.Blob.Bucket == "" {
		return nil, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init gcs client")
	}
	return blob.New(client.Bucket(cfg.Blob.Bucket), logger), nil
}

// initEnv builds every component the requested subcommand set needs.
// Setting only the envOptions flags it needs (staging, transforming,
// matching, embedding, crmSync, review) lets each subcommand only pay for
// the dependencies it actually uses.
func initEnv(ctx context.Context, opts envOptions) (*pipelineEnv, error) {
	logger := zap.L()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Store: st}

	if opts.staging {
		b, err := initBlob(ctx, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		env.Blob = b
		env.Stager = stager.New(st, b, logger)
		env.Parser = stager.NewParser(st, b, logger)
	}

	if opts.matching {
		env.Matcher = matcher.New(st, scorer.New(), logger)
	}

	if opts.transforming {
		env.Transformer = transform.New(st, func(ctx context.Context, ids []string) {
			if env.Matcher == nil || len(ids) == 0 {
				return
			}
			// All leads from one batch share a tenant.
			lead, err := st.GetCanonicalLead(ctx, ids[0])
			if err != nil || lead == nil {
				logger.Error("env: resolve tenant for match trigger", zap.Error(err))
				return
			}
			env.Matcher.MatchMany(ctx, lead.TenantID, ids)
		}, logger)
	}

	if opts.embedding {
		client := embedprovider.NewClient(cfg.EmbedProvider.APIKey, cfg.EmbedProvider.BaseURL)
		env.Embedder = embedqueue.New(st, client, cfg.EmbedProvider.Model, cfg.Worker.MaxAttempts, logger)
	}

	if opts.crmSync {
		env.Puller = crmsync.New(st, followUpBossFactory(), logger)
	}

	if opts.review {
		env.Resolver = review.New(st, logger)
	}

	return env, nil
}

// envOptions selects which components initEnv builds.
type envOptions struct {
	staging      bool
	transforming bool
	matching     bool
	embedding    bool
	crmSync      bool
	review       bool
}

// followUpBossFactory resolves a CRM client for a given connection. It
// currently ignores connection.CredentialRef and always uses the
// process-wide FollowUpBoss config; per-tenant credential resolution
// belongs to a secret store this module does not implement.
func followUpBossFactory() crmsync.ClientFactory {
	return func(conn *model.CrmConnection) (followupboss.Client, error) {
		baseURL := conn.BaseURL
		if baseURL == "" {
			baseURL = cfg.FollowUpBoss.BaseURL
		}
		if cfg.FollowUpBoss.APIKey == "" {
			return nil, eris.New("followupboss.api_key is not configured")
		}
		return followupboss.NewClient(cfg.FollowUpBoss.APIKey, baseURL), nil
	}
}
