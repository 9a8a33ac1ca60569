// Package app wires the engine components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/agent"
	"github.com/feichai0017/document-alerts/internal/agent/document"
	"github.com/feichai0017/document-alerts/internal/alert"
	"github.com/feichai0017/document-alerts/internal/rules"
	"github.com/feichai0017/document-alerts/internal/service/analysis"
	docsvc "github.com/feichai0017/document-alerts/internal/service/document"
	"github.com/feichai0017/document-alerts/internal/store"
	"github.com/feichai0017/document-alerts/internal/utils/validator"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/storage"
)

// App holds the long-lived components shared by the server and the worker.
type App struct {
	Config    *config.EngineConfig
	Rules     *rules.Registry
	Alerts    store.AlertStore
	Documents *docsvc.DocumentService
	Analysis  *analysis.Service

	decoders *agent.DecoderFactory
	locks    *redis.Client
	logger   logger.Logger
}

// New loads the rule file and opens storage, alert store and decoders.
// A rule file that fails to load aborts startup.
func New(ctx context.Context, cfg *config.EngineConfig, log logger.Logger) (*App, error) {
	set, err := rules.LoadFile(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	registry := rules.NewRegistry(set, log)

	objects, err := storage.NewStorage(ctx, storage.StorageType(cfg.DocumentStorage), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	alerts, err := store.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize alert store: %w", err)
	}

	decoders, err := agent.NewDefaultDecoderFactory(ctx, cfg, log)
	if err != nil {
		alerts.Close()
		return nil, fmt.Errorf("failed to initialize decoders: %w", err)
	}

	v := validator.NewDocumentValidator(log, &validator.ValidatorConfig{
		MaxFileSize:  cfg.MaxFileSize,
		AllowedTypes: allowedTypes(cfg.AllowedTypes),
		MaxPageCount: cfg.MaxPageCount,
	})
	documents := docsvc.NewService(objects, v, log)

	extractor := document.NewExtractor(decoders, cfg.ExtractWorkers, log)
	// only the memory store is private to one process
	var lockOpts []alert.Option
	var locks *redis.Client
	if cfg.AlertStore != "memory" {
		redisCfg := config.GetRedisConfig()
		locks = redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		lockOpts = append(lockOpts, alert.WithLocker(
			alert.NewRedisLocker(locks, redisCfg.KeyPrefix, redisCfg.LockTTL, log)))
	}
	manager := alert.NewManager(alerts, log, lockOpts...)
	svc := analysis.NewService(documents, extractor, registry, manager, log,
		analysis.WithExtractTimeout(cfg.ExtractTimeout),
		analysis.WithReportSink(documents),
	)

	return &App{
		Config:    cfg,
		Rules:     registry,
		Alerts:    alerts,
		Documents: documents,
		Analysis:  svc,
		decoders:  decoders,
		locks:     locks,
		logger:    log,
	}, nil
}

// WatchRules reloads the rule file on change until ctx ends. It is a no-op
// when watching is disabled.
func (a *App) WatchRules(ctx context.Context) error {
	if !a.Config.WatchRules {
		return nil
	}
	w, err := rules.NewWatcher(a.Config.RulesPath, a.Rules, a.logger)
	if err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Rule watcher stopped", logger.Error(err))
		}
	}()
	return nil
}

func (a *App) Close() error {
	a.decoders.Close()
	if a.locks != nil {
		a.locks.Close()
	}
	return a.Alerts.Close()
}

// allowedTypes restricts the default extension table to the configured
// extensions.
func allowedTypes(exts []string) map[string][]string {
	all := validator.DefaultAllowedTypes()
	if len(exts) == 0 {
		return all
	}
	out := make(map[string][]string, len(exts))
	for _, ext := range exts {
		if mimes, ok := all[ext]; ok {
			out[ext] = mimes
		}
	}
	return out
}
