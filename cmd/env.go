package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/internal/fetcher"
	"github.com/sells-group/gmv-tracker/internal/insight"
	"github.com/sells-group/gmv-tracker/internal/notionsync"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
	"github.com/sells-group/gmv-tracker/internal/report"
	"github.com/sells-group/gmv-tracker/internal/store"
	"github.com/sells-group/gmv-tracker/pkg/anthropic"
	"github.com/sells-group/gmv-tracker/pkg/notion"
)

// initStore opens the configured backend without migrating it.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "gmv.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates the config for mode, opens the store and migrates it.
// The caller closes the store.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initService(st store.Store) *report.Service {
	return report.NewService(st, report.NewBuilder(cfg.Report.TopN))
}

func defaultPolicy() (reconcile.Policy, error) {
	return reconcile.ParsePolicy(cfg.Report.Policy)
}

func initFetcher() *fetcher.Opener {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	return fetcher.New(fetcher.Options{
		HTTP: fetcher.HTTPOptions{
			UserAgent:     cfg.Fetch.UserAgent,
			Timeout:       timeout,
			MaxRetries:    cfg.Fetch.MaxRetries,
			RatePerSecond: cfg.Fetch.RatePerSec,
		},
		FTP: fetcher.FTPOptions{Timeout: timeout},
	})
}

// initAnalyzer builds the provider list from config. Anthropic is the only
// provider wired today.
func initAnalyzer(st store.Store) *insight.Analyzer {
	client := anthropic.NewClient(anthropic.Options{
		APIKey:     cfg.Anthropic.Key,
		BaseURL:    cfg.Anthropic.BaseURL,
		MaxRetries: cfg.Anthropic.MaxRetries,
	})
	providers := []insight.Provider{
		insight.NewAnthropicProvider(client, insight.AnthropicConfig{
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
		}),
	}
	return insight.NewAnalyzer(st, providers, insight.AnalyzerOptions{
		Concurrency: cfg.Insight.Concurrency,
		TrendWeeks:  cfg.Insight.TrendWeeks,
	})
}

func initSyncer(st store.Store) *notionsync.Syncer {
	client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
	return notionsync.New(client, st, notionsync.Config{
		DatabaseID:    cfg.Notion.DatabaseID,
		TitleProperty: cfg.Notion.TitleProperty,
		Concurrency:   cfg.Notion.Concurrency,
	})
}
