package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ta-tracker/internal/canonical"
	"github.com/sells-group/ta-tracker/internal/extract"
	"github.com/sells-group/ta-tracker/internal/fetcher"
	"github.com/sells-group/ta-tracker/internal/pipeline"
	"github.com/sells-group/ta-tracker/internal/refdata"
	"github.com/sells-group/ta-tracker/internal/resolve"
	"github.com/sells-group/ta-tracker/internal/review"
	"github.com/sells-group/ta-tracker/internal/store"
)

// openStore opens the configured backend and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func loadAgents() (*refdata.Table, error) {
	return refdata.Load(cfg.Agents.Path)
}

func resolvePolicy() resolve.Policy {
	p := resolve.DefaultPolicy()
	if cfg.Resolve.AcceptanceThreshold > 0 {
		p.AcceptanceThreshold = cfg.Resolve.AcceptanceThreshold
	}
	if cfg.Resolve.AmbiguityMargin > 0 {
		p.AmbiguityMargin = cfg.Resolve.AmbiguityMargin
	}
	if cfg.Resolve.NoiseFloor > 0 {
		p.NoiseFloor = cfg.Resolve.NoiseFloor
	}
	return p
}

// buildPipeline wires the full extraction stack over an open store.
func buildPipeline(st store.Store) (*pipeline.Pipeline, error) {
	agents, err := loadAgents()
	if err != nil {
		return nil, err
	}
	canon, err := canonical.New(agents, resolvePolicy().AcceptanceThreshold)
	if err != nil {
		return nil, err
	}
	ex := extract.New(extract.Options{ContextWindow: cfg.Extract.ContextWindow})
	queue := review.NewQueue(st, agents)
	return pipeline.New(st, ex, canon, queue, resolvePolicy(), cfg.Run.Workers), nil
}

func newFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:     cfg.EDGAR.UserAgent,
		Timeout:       time.Duration(cfg.EDGAR.TimeoutSecs) * time.Second,
		MaxRetries:    cfg.EDGAR.MaxRetries,
		RatePerSecond: cfg.EDGAR.RatePerSecond,
	})
}
