package server

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/wikiwriter/config"
	"github.com/mohammad-safakhou/wikiwriter/internal/crew"
	"github.com/mohammad-safakhou/wikiwriter/internal/runs"
	"github.com/mohammad-safakhou/wikiwriter/internal/stage"
	"github.com/mohammad-safakhou/wikiwriter/internal/store"
	"github.com/mohammad-safakhou/wikiwriter/internal/wikipedia"
)

// App holds the shared dependencies of the API server and the CLI.
type App struct {
	Config     *config.Config
	Store      store.Store
	Executor   *runs.Executor
	Dispatcher *runs.Dispatcher
	Notifier   *runs.Notifier

	closeStore func() error
}

// NewApp wires storage, research, the generation pipeline and the run
// executor from cfg. Metrics are registered with reg when it is not nil.
// The dispatcher is created but not started.
func NewApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	st, closeStore, err := store.Open(ctx, store.Options{
		Backend:     cfg.Storage.Backend,
		RedisHost:   cfg.Storage.Redis.Host,
		RedisPort:   cfg.Storage.Redis.Port,
		Password:    cfg.Storage.Redis.Password,
		DB:          cfg.Storage.Redis.DB,
		TTL:         cfg.Storage.Redis.TTL,
		DialTimeout: cfg.Storage.Redis.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gen, err := newPipeline(cfg)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return newApp(cfg, st, closeStore, gen, reg), nil
}

func newApp(cfg *config.Config, st store.Store, closeStore func() error, gen stage.Generator, reg prometheus.Registerer) *App {
	logger := log.New(log.Writer(), "[RUNS] ", log.LstdFlags)
	metrics := runs.NewMetrics(reg)
	exec := runs.NewExecutor(st, gen, runs.Options{
		MinWords:       cfg.Content.MinWords,
		AllowedDomains: cfg.Content.AllowedDomains,
		Timeout:        cfg.Runs.Timeout,
		Tolerant:       cfg.Content.TolerantExtraction,
		ArtifactsDir:   cfg.Runs.ArtifactsDir,
	}, metrics, logger)
	return &App{
		Config:     cfg,
		Store:      st,
		Executor:   exec,
		Dispatcher: runs.NewDispatcher(st, exec, cfg.Runs.Workers, cfg.Runs.QueueSize, metrics, logger),
		Notifier:   &runs.Notifier{Store: st, Interval: cfg.Server.StreamInterval, Logger: logger},
		closeStore: closeStore,
	}
}

func newPipeline(cfg *config.Config) (*crew.Pipeline, error) {
	var researcher crew.Researcher
	if cfg.Wikipedia.Enabled {
		wiki, err := wikipedia.New(wikipedia.Options{
			BaseURL:   cfg.Wikipedia.BaseURL,
			UserAgent: cfg.Wikipedia.UserAgent,
			MaxChars:  cfg.Wikipedia.MaxChars,
			CacheSize: cfg.Wikipedia.CacheSize,
			Timeout:   cfg.Wikipedia.Timeout,
			Logger:    log.New(log.Writer(), "[WIKI] ", log.LstdFlags),
		})
		if err != nil {
			return nil, fmt.Errorf("wikipedia client: %w", err)
		}
		researcher = wiki
	}
	llm := crew.NewOllama(cfg.LLM.BaseURL, cfg.LLM.ModelID, cfg.LLM.Temperature, cfg.LLM.Timeout)
	return crew.NewPipeline(llm, researcher, cfg.Content.MinWords, log.New(log.Writer(), "[CREW] ", log.LstdFlags))
}

// Close stops the dispatcher and releases the store.
func (a *App) Close() error {
	a.Dispatcher.Stop()
	return a.closeStore()
}
