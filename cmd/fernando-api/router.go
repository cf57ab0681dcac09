package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fernando-x/platform/libs/intelligence-engine/cmd/fernando-api/handlers"
	"github.com/fernando-x/platform/libs/intelligence-engine/cmd/fernando-api/middleware"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/app"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/monitoring"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/webhook"
)

// AppConfig holds router configuration.
type AppConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	AuthConfig     middleware.AuthConfig
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		RequestTimeout: 30 * time.Second,
		AllowedOrigins: []string{"*"},
		AuthConfig: middleware.AuthConfig{
			Enabled: false, // Disabled by default for development
		},
	}
}

// Services are the dependencies of every route.
type Services struct {
	Ready         func(ctx context.Context) error
	Knowledge     *knowledge.Base
	Search        handlers.SearchEngine
	Conversations handlers.Conversations
	Memories      handlers.Memories
	Reports       handlers.ReportGenerator
	Vision        handlers.PhotoAnalyzer
	SiteAgent     handlers.SiteAgent
	Refresh       handlers.RefreshManager
	Scheduler     handlers.JobScheduler
	Alerts        handlers.AlertSettings
	MarketView    handlers.MarketView
	ImportStatus  handlers.ImportStatus
	Audit         *monitoring.AuditLogger
	Webhook       *webhook.Handler
}

// ServicesFrom adapts a wired App to the router.
func ServicesFrom(a *app.App) Services {
	s := Services{
		Ready:         a.Ready,
		Knowledge:     a.Knowledge,
		Search:        a.Search,
		Conversations: a.Conversations,
		Memories:      a.Memory,
		Reports:       a.Reports,
		Vision:        a.Vision,
		Refresh:       a.Refresh,
		Scheduler:     a.Scheduler,
		Alerts:        a.Alerts,
		MarketView:    a.Repos.MarketView,
		ImportStatus:  a.HarImporter,
		Audit:         a.Audit,
		Webhook:       a.Webhook,
	}
	if a.Agent != nil {
		s.SiteAgent = a.Agent
	}
	return s
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *AppConfig, svc Services) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger.WithComponent("http")))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"fernando-x"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if svc.Ready != nil {
			if err := svc.Ready(r.Context()); err != nil {
				logger.Warn().Err(err).Msg("Readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	// The webhook authenticates with its own shared secret.
	r.Get("/api/data-refresh/webhook", svc.Webhook.Describe)
	r.Post("/api/data-refresh/webhook", svc.Webhook.Receive)

	searchHandler := handlers.NewSearchHandler(logger, svc.Search, svc.Knowledge)
	conversationHandler := handlers.NewConversationHandler(logger, svc.Conversations)
	memoryHandler := handlers.NewMemoryHandler(logger, svc.Memories)
	reportHandler := handlers.NewReportHandler(logger, svc.Reports)
	visionHandler := handlers.NewVisionHandler(logger, svc.Vision, svc.SiteAgent)
	refreshHandler := handlers.NewRefreshHandler(logger, svc.Refresh, svc.Scheduler, svc.Alerts, svc.Audit)
	marketHandler := handlers.NewMarketHandler(logger, svc.MarketView, svc.ImportStatus)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthConfig))

		r.Get("/search", searchHandler.Search)
		r.Get("/search/stats", searchHandler.Stats)

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/nodes/{id}", searchHandler.Node)
			r.Get("/nodes/{id}/similar", searchHandler.Similar)
			r.Get("/neighborhoods", searchHandler.Neighborhoods)
			r.Get("/neighborhoods/{name}", searchHandler.Neighborhood)
		})

		r.Route("/conversation", func(r chi.Router) {
			r.Post("/messages", conversationHandler.Message)
			r.Get("/{sessionID}", conversationHandler.Session)
			r.Delete("/{sessionID}", conversationHandler.Reset)
		})

		r.Route("/memories", func(r chi.Router) {
			r.Post("/search", memoryHandler.Search)
			r.Post("/training/search", memoryHandler.SearchTraining)
			r.Get("/stats", memoryHandler.Counts)
		})

		r.Post("/reports", reportHandler.Generate)
		r.Get("/reports/templates", reportHandler.Templates)

		r.Route("/vision", func(r chi.Router) {
			r.Post("/photos", visionHandler.Photo)
			r.Post("/property", visionHandler.Property)
			r.Post("/construction", visionHandler.Construction)
			r.Post("/satellite", visionHandler.Satellite)
			r.Get("/cache", visionHandler.CacheStats)
			r.Delete("/cache", visionHandler.ClearCache)
		})

		r.Route("/refresh", func(r chi.Router) {
			r.Get("/sources", refreshHandler.Sources)
			r.Post("/run", refreshHandler.Run)
			r.Get("/jobs", refreshHandler.Jobs)
			r.Post("/jobs/{name}/run", refreshHandler.RunJob)
			r.Get("/alerts/config", refreshHandler.AlertConfig)
			r.Put("/alerts/config", refreshHandler.UpdateAlertConfig)
		})

		r.Get("/audit/events", refreshHandler.AuditEvents)

		r.Get("/market", marketHandler.Query)
		r.Get("/market/types", marketHandler.DataTypes)
		r.Get("/imports/har/status", marketHandler.HarStatus)
	})

	return r
}
