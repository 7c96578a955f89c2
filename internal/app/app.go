package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/handlers"
	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/services/agents"
	"github.com/ternarybob/tally/internal/services/llm"
	"github.com/ternarybob/tally/internal/services/orchestrator"
	"github.com/ternarybob/tally/internal/services/reports"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Generation backend shared by every step, nil in pattern mode
	LLMService interfaces.GenerationService

	// Pipeline
	Orchestrator *orchestrator.Orchestrator
	ReportLoader interfaces.ReportLoader // local callers: CLI and batch
	ServeLoader  interfaces.ReportLoader // HTTP callers, confined to server.reports_dir

	// Metrics
	Registry *prometheus.Registry

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	AnalysisHandler *handlers.AnalysisHandler
	ConfigHandler   *handlers.ConfigHandler
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	service, err := llm.NewGenerationService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation service: %w", err)
	}

	return NewWithService(cfg, service, logger), nil
}

// NewWithService wires the pipeline around an existing generation service.
// A nil service runs every step on pattern analysis of the report text.
func NewWithService(cfg *common.Config, service interfaces.GenerationService, logger arbor.ILogger) *App {
	app := &App{
		Config:     cfg,
		Logger:     logger,
		LLMService: service,
		Registry:   prometheus.NewRegistry(),
	}

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.initServices()
	app.initHandlers()

	logger.Info().
		Str("provider", app.Provider()).
		Str("mode", string(app.Mode())).
		Int("max_retries", cfg.Pipeline.MaxRetries).
		Bool("parallel_independent", cfg.Pipeline.ParallelIndependent).
		Msg("Application initialization complete")

	return app
}

// Provider names the generation backend, or "pattern" when there is none
func (a *App) Provider() string {
	if a.LLMService == nil {
		return llm.PatternProvider
	}
	return a.LLMService.Provider()
}

// Mode reports the generation mode; pattern mode counts as offline
func (a *App) Mode() interfaces.LLMMode {
	if a.LLMService == nil {
		return interfaces.LLMModeOffline
	}
	return a.LLMService.GetMode()
}

func (a *App) initServices() {
	policy := agents.NewRecommendationPolicy(a.Config.Recommendation)

	steps := orchestrator.Steps{
		Extractor:  agents.NewExtractor(a.LLMService, a.Logger),
		Sentiment:  agents.NewSentimentAnalyzer(a.LLMService, a.Logger),
		Summarizer: agents.NewSummarizer(a.LLMService, policy, a.Config.Pipeline.UseLLMNarrative, a.Logger),
	}

	a.Orchestrator = orchestrator.New(
		steps,
		orchestrator.OptionsFromConfig(a.Config.Pipeline),
		a.Logger,
		orchestrator.WithMetrics(orchestrator.MustNewMetrics(a.Registry)),
		orchestrator.WithProvider(a.Provider()),
	)

	a.ReportLoader = reports.NewLoader(a.Logger)
	a.ServeLoader = reports.NewLoader(a.Logger, reports.WithBaseDir(a.Config.Server.ReportsDir))

	a.Logger.Debug().Msg("Pipeline services initialized")
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Orchestrator, a.Logger)
	a.AnalysisHandler = handlers.NewAnalysisHandler(a.Orchestrator, a.ServeLoader, a.Logger)
	a.ConfigHandler = handlers.NewConfigHandler(a.Logger, a.Config)
}

// MetricsHandler serves the application registry in Prometheus exposition format
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// HealthCheck verifies the generation backend with a bounded timeout
func (a *App) HealthCheck(ctx context.Context) error {
	if a.LLMService == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.LLMService.HealthCheck(ctx)
}

// Close releases the generation service
func (a *App) Close() error {
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close generation service")
			return err
		}
	}
	a.Logger.Debug().Msg("Application closed")
	return nil
}
