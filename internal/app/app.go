// Package app assembles the extraction service from configuration.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/moneychat-nlp/internal/cache"
	"github.com/dvloznov/moneychat-nlp/internal/cache/inmemory"
	"github.com/dvloznov/moneychat-nlp/internal/cache/redis"
	"github.com/dvloznov/moneychat-nlp/internal/config"
	infraBQ "github.com/dvloznov/moneychat-nlp/internal/infra/bigquery"
	"github.com/dvloznov/moneychat-nlp/internal/infra/gcs"
	"github.com/dvloznov/moneychat-nlp/internal/llm"
	"github.com/dvloznov/moneychat-nlp/internal/llm/gemini"
	"github.com/dvloznov/moneychat-nlp/internal/llm/openai"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
	"github.com/dvloznov/moneychat-nlp/internal/metrics"
	"github.com/dvloznov/moneychat-nlp/internal/pipeline"
)

// App holds the service and the resources it owns.
type App struct {
	Service *pipeline.Service
	Store   cache.Store

	closers []io.Closer
}

// Close releases every client the App opened, in reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewProvider creates the extraction provider selected by cfg.
func NewProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.New(ctx, cfg.GeminiAPIKey, cfg.Model)
	case config.ProviderOpenAI:
		return openai.New(cfg.OpenAIAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Build wires provider, cache, audit and archive into a Service.
// BigQuery and GCS are only used when configured.
func Build(ctx context.Context, cfg *config.Config, provider llm.Provider) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	client := llm.NewClient(
		llm.Limit(provider, cfg.MaxConcurrency, 0),
		llm.WithTimeout(cfg.UpstreamTimeout),
		llm.WithObserver(metrics.ObserveUpstream),
	)

	opts := []pipeline.Option{
		pipeline.WithBatchPolicy(cfg.BatchPolicy),
		pipeline.WithLocation(loc),
	}

	if cfg.UseMemoryCache() {
		a.Store = inmemory.NewStore()
		log.Info().Msg("Using in-process response cache")
	} else {
		store, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store)
		log.Info().Str("redis_url", cfg.RedisURL).Msg("Connected to Redis")
	}
	opts = append(opts, pipeline.WithCache(cache.New(a.Store, cache.DefaultTTL)))

	if cfg.BigQueryProject != "" {
		repo, err := infraBQ.NewRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("Build: %w", err)
		}
		a.closers = append(a.closers, repo)
		opts = append(opts, pipeline.WithRunRecorder(repo), pipeline.WithUploadRecorder(repo))
		log.Info().Str("project", cfg.BigQueryProject).Str("dataset", cfg.BigQueryDataset).Msg("Audit records enabled")
	} else {
		log.Info().Msg("No BigQuery project configured - audit records disabled")
	}

	if cfg.GCSBucket != "" {
		archive, err := gcs.NewArchive(ctx, cfg.GCSBucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("Build: %w", err)
		}
		a.closers = append(a.closers, archive)
		opts = append(opts, pipeline.WithUploadArchive(archive))
		log.Info().Str("bucket", cfg.GCSBucket).Msg("Spreadsheet archiving enabled")
	}

	a.Service = pipeline.NewService(client, opts...)
	return a, nil
}
