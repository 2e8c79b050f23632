package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/pipeline"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/scorer"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/store"
	"github.com/pokamal0y-ship-it/alpha-project-test1/pkg/claude"
)

// pipelineEnv bundles the initialized store and pipeline for commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "alpha_hunter.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		// Connect with backoff: the database coming up alongside us is a
		// transient condition, not a configuration error.
		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.OnRetry = resilience.RetryLogger("postgres", "connect")
		var st *store.PostgresStore
		err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
			var err error
			st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
			return err
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadReferences assembles the scorer's reference data. Stored reference
// tables win over built-in defaults; a YAML weights file wins over both.
func loadReferences(ctx context.Context, st store.Store) (scorer.References, error) {
	weights, err := st.InvestorWeights(ctx)
	if err != nil {
		return scorer.References{}, eris.Wrap(err, "load investor weights")
	}
	if len(weights) == 0 {
		weights = model.DefaultInvestorWeights()
	}
	if cfg.Scoring.InvestorWeightsPath != "" {
		weights, err = model.LoadInvestorWeights(cfg.Scoring.InvestorWeightsPath)
		if err != nil {
			return scorer.References{}, err
		}
	}

	sources, err := st.Sources(ctx)
	if err != nil {
		return scorer.References{}, eris.Wrap(err, "load sources")
	}
	reliability := make(map[string]float64, len(sources))
	for _, src := range sources {
		reliability[src.ID] = src.Reliability
	}

	return scorer.References{
		InvestorWeights:   model.InvestorLookup(weights),
		SourceReliability: reliability,
	}, nil
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	refs, err := loadReferences(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := claude.NewClient(cfg.Anthropic.Key)
	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, client, refs),
	}, nil
}
