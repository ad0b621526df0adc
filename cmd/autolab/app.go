package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ahrav/go-autolab/infrastructure/catalog"
	"github.com/ahrav/go-autolab/infrastructure/llm"
	"github.com/ahrav/go-autolab/infrastructure/middleware"
	"github.com/ahrav/go-autolab/infrastructure/store"
	"github.com/ahrav/go-autolab/internal/application"
	"github.com/ahrav/go-autolab/internal/ports"
)

// app is the fully wired service graph shared by the subcommands.
type app struct {
	registry *prometheus.Registry
	store    ports.Store
	service  *application.AnalysisService
}

func newApp(cfg application.AppConfig, logger *zap.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewPrometheusMetrics(registry)

	papers, err := loadCatalog(cfg.Analysis.CatalogDir)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewStack(cfg.LLM, llm.WithStackMetrics(metrics))
	if err != nil {
		return nil, err
	}
	gen, err := llm.NewTextGenerator(client, logger.Named("llm"))
	if err != nil {
		return nil, err
	}

	orch, err := application.NewOrchestrator(
		application.NewDefaultUnitRegistry(gen, papers),
		cfg.Analysis.Stages,
		application.WithLogger(logger.Named("orchestrator")),
		application.WithMetrics(metrics),
		application.WithUnitDecorator(middleware.Decorator(nil, metrics)),
	)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	svc, err := application.NewAnalysisService(st, orch,
		application.WithServiceLogger(logger.Named("service")),
		application.WithServiceMetrics(metrics),
		application.WithAnalysisTimeout(cfg.Analysis.Timeout),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	logger.Debug("application wired",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("in_memory", cfg.Database.InMemory),
		zap.Int("catalog_papers", papers.Len()),
	)
	return &app{registry: registry, store: st, service: svc}, nil
}

// Close releases the store.
func (a *app) Close() error { return a.store.Close() }

func loadCatalog(dir string) (*catalog.Static, error) {
	if dir == "" {
		return catalog.Default()
	}
	papers, err := catalog.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog from %s: %w", dir, err)
	}
	return papers, nil
}

func openStore(cfg application.DatabaseConfig, logger *zap.Logger) (ports.Store, error) {
	if cfg.InMemory {
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenSQLite(cfg.Path, store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}
	return st, nil
}
