// Package app wires the Fernando-X services from configuration. The API
// server and the operator CLI share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/config"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/conversation"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/embedding"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/memory"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/monitoring"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/refresh"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/report"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/search"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/vision"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/webhook"
)

// Options adjusts wiring for a particular entrypoint.
type Options struct {
	// ImportProgress observes DataProcess3 imports.
	ImportProgress ingest.ProgressFunc
}

// App holds every service built from one configuration.
type App struct {
	Config *config.Config
	Logger *observability.Logger

	DB        *sql.DB
	Repos     *storage.Repositories
	Cache     cache.Client
	Publisher cache.Publisher

	Knowledge     *knowledge.Base
	Embedder      embedding.Embedder
	Search        *search.Engine
	Memory        *memory.Service
	Conversations *conversation.Manager
	Reports       *report.Generator
	Vision        *vision.Analyzer
	// Agent is nil unless hosted image inference is configured.
	Agent *vision.Agent

	HarImporter  *ingest.HarMlsImporter
	DataImporter *ingest.DataProcessImporter

	// Fetcher is nil without a Perplexity API key.
	Fetcher   *refresh.Fetcher
	Tracker   *refresh.Tracker
	Alerts    *refresh.AlertService
	Refresh   *refresh.Manager
	Scheduler *refresh.Scheduler
	Audit     *monitoring.AuditLogger
	Webhook   *webhook.Handler
}

// New opens the database and cache and builds every service. The caller
// owns the returned App and must Close it.
func New(cfg *config.Config, logger *observability.Logger, opts Options) (*App, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	a, err := build(cfg, logger, db, c, opts)
	if err != nil {
		c.Close()
		db.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, logger *observability.Logger, db *sql.DB, c cache.Client, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Repos:  storage.NewRepositories(db),
		Cache:  c,
	}
	if p, ok := c.(cache.Publisher); ok {
		a.Publisher = p
	}

	kb, err := knowledge.New()
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	a.Knowledge = kb

	a.Embedder, err = embedding.New(cfg.Embedding.Provider, embedding.Config{
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	a.Search = search.NewEngine(logger, kb, a.Embedder, c, search.Config{
		MinSimilarity: cfg.Search.MinSimilarity,
		DefaultLimit:  cfg.Search.DefaultLimit,
		CacheTTL:      cfg.Search.CacheTTL,
	})
	a.Memory = memory.NewService(logger, a.Repos, a.Embedder)
	a.Conversations = conversation.NewManager(logger, kb, a.Search, a.Memory)
	a.Reports = report.NewGenerator(logger, kb)

	if cfg.ReplicateActive() {
		runner, err := vision.NewReplicateClient(cfg.Replicate, logger)
		if err != nil {
			return nil, fmt.Errorf("create replicate client: %w", err)
		}
		a.Agent = vision.NewAgent(runner, logger)
		a.Vision = vision.NewAnalyzer(logger, a.Agent, c)
	} else {
		a.Vision = vision.NewAnalyzer(logger, nil, c)
	}

	a.HarImporter = ingest.NewHarMlsImporter(logger, a.Repos.HarMls, cfg.Import.HarMlsDir)
	a.DataImporter = ingest.NewDataProcessImporter(logger, a.Repos, ingest.DataProcessConfig{
		BaseDir:     cfg.Import.DataProcess3Dir,
		Concurrency: cfg.Import.Concurrency,
		Progress:    opts.ImportProgress,
	})

	if cfg.Perplexity.APIKey != "" {
		pc, err := refresh.NewPerplexityClient(cfg.Perplexity)
		if err != nil {
			return nil, fmt.Errorf("create perplexity client: %w", err)
		}
		a.Fetcher = refresh.NewFetcher(pc)
	} else {
		logger.Warn().Msg("PERPLEXITY_API_KEY not set; research sources will fail")
	}

	a.Audit = monitoring.NewAuditLogger(logger, a.Publisher)
	a.Tracker = refresh.NewTracker(logger, a.Repos.HarMls, a.Repos.Market)
	a.Alerts = refresh.NewAlertService(logger, refresh.AlertConfigFrom(cfg.Alerts), a.Publisher)
	a.Refresh = refresh.NewManager(logger, refresh.Deps{
		Sources:  a.Repos.Refresh,
		Metrics:  a.Repos.Market,
		Projects: a.Repos.Construction,
		Importer: a.DataImporter,
		Fetcher:  a.Fetcher,
		Tracker:  a.Tracker,
		Alerts:   a.Alerts,
	})
	a.Scheduler = refresh.NewScheduler(logger, cfg.Location(), refresh.DefaultJobs(a.Refresh))
	a.Webhook = webhook.NewHandler(logger, webhook.Deps{
		Secret:    cfg.Webhook.Secret,
		Refresher: a.Refresh,
		Importer:  a.DataImporter,
		Alerts:    a.Alerts,
		Audit:     a.Audit,
	})

	return a, nil
}

// Migrate applies pending schema migrations and seeds the refresh sources.
func (a *App) Migrate(ctx context.Context) (*storage.MigrationStatus, error) {
	status, err := storage.NewMigrationManager(a.DB, a.Config.Database.Driver).Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := a.Refresh.Seed(ctx); err != nil {
		return nil, err
	}
	a.Logger.Info().
		Int("applied", len(status.Ran)).
		Int("total", status.Total).
		Msg("Database schema up to date")
	return status, nil
}

// Ready pings the database.
func (a *App) Ready(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

// Close stops the scheduler and releases the cache and database.
func (a *App) Close() error {
	a.Scheduler.StopAll()
	return errors.Join(a.Cache.Close(), a.DB.Close())
}
