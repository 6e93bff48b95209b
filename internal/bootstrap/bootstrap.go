package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/keyword-intel/internal/config"
	"github.com/kirillkom/keyword-intel/internal/core/ports"
	"github.com/kirillkom/keyword-intel/internal/core/usecase"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/htmlanalysis"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/locale"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/pagefetch"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/provider/adplanner"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/provider/ratelimit"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/provider/serpscraper"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/queue/nats"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/resilience"
	"github.com/kirillkom/keyword-intel/internal/observability/metrics"
)

type Options struct {
	// Service labels pipeline metrics ("api", "worker", "mcp").
	Service    string
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

type App struct {
	Config config.Config

	Queue      *nats.Queue
	Serp       *usecase.SerpUseCase
	Volume     *usecase.VolumeUseCase
	Research   *usecase.ResearchUseCase
	Clustering *usecase.ClusteringUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	store := postgres.NewCacheStore(db, cfg.CacheStaleAfter, logger)
	researchRepo := postgres.NewResearchRepository(db)

	locales, err := locale.Load(cfg.LocaleTablePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load locale table: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, nats.Subjects{
		ClusteringRequested: cfg.NATSClusteringSubject,
		ResearchInvalidated: cfg.NATSInvalidationSubject,
	}, nats.Options{
		ResilienceExecutor: newExecutor(cfg),
		JobTimeout:         cfg.ClusteringTimeout + usecase.ClusteringStatusMargin,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	volumeProvider := adplanner.New(adplanner.Config{
		BaseURL:         cfg.AdPlannerBaseURL,
		APIVersion:      cfg.AdPlannerAPIVersion,
		DeveloperToken:  cfg.AdPlannerDeveloperToken,
		CustomerID:      cfg.AdPlannerCustomerID,
		LoginCustomerID: cfg.AdPlannerLoginCustomerID,
		AccessToken:     cfg.AdPlannerAccessToken,
	}, ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.AdPlannerRPS}), newExecutor(cfg))

	serpProvider := serpscraper.New(serpscraper.Config{
		BaseURL: cfg.SerpScraperBaseURL,
		ActorID: cfg.SerpScraperActorID,
		Token:   cfg.SerpScraperToken,
	}, ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.SerpScraperRPS}), newExecutor(cfg))

	fetcher := pagefetch.New(pagefetch.Config{
		UserAgent: cfg.PageFetchUserAgent,
		Timeout:   cfg.PageFetchTimeout,
	})
	clusterer := ollama.NewClusterer(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, newExecutor(cfg)))

	var pipelineMetrics ports.PipelineMetrics
	if opts.Registerer != nil {
		pipelineMetrics = metrics.NewPipelineMetrics(opts.Service, opts.Registerer)
	}

	serpUC := usecase.NewSerpUseCase(store, serpProvider, fetcher, htmlanalysis.New(), locales, pipelineMetrics, logger)
	volumeUC := usecase.NewVolumeUseCase(store, volumeProvider, locales, pipelineMetrics, logger, usecase.VolumeOptions{
		BatchSize: cfg.VolumeBatchSize,
		Pacing:    cfg.VolumeBatchPacing,
	})
	researchUC := usecase.NewResearchUseCase(researchRepo, volumeUC)
	clusteringUC := usecase.NewClusteringUseCase(researchRepo, queue, clusterer, queue, pipelineMetrics, logger, cfg.ClusteringTimeout)

	return &App{
		Config: cfg,
		Queue:  queue,

		Serp:       serpUC,
		Volume:     volumeUC,
		Research:   researchUC,
		Clustering: clusteringUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// newExecutor gives each provider its own breakers.
func newExecutor(cfg config.Config) *resilience.Executor {
	rc := resilience.DefaultConfig()
	rc.CallTimeout = cfg.ProviderTimeout()
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.BreakerEnabled = cfg.BreakerEnabled
	return resilience.NewExecutor(rc)
}
