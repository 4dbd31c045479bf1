package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/doeshing/multiprompt/internal/application/doctor"
	"github.com/doeshing/multiprompt/internal/application/execution"
	"github.com/doeshing/multiprompt/internal/application/orchestrator"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/ai"
	"github.com/doeshing/multiprompt/internal/infrastructure/cache"
	"github.com/doeshing/multiprompt/internal/infrastructure/config"
	"github.com/doeshing/multiprompt/internal/infrastructure/credentials"
	"github.com/doeshing/multiprompt/internal/infrastructure/eventbus"
	"github.com/doeshing/multiprompt/internal/infrastructure/history"
	"github.com/doeshing/multiprompt/internal/pkg/filesystem"
	"github.com/doeshing/multiprompt/internal/pkg/logger"
	"github.com/doeshing/multiprompt/internal/ports"
)

const envFileName = ".env"

// Options tunes container construction.
type Options struct {
	Verbose bool
	// ConfigPath overrides the config file location.
	ConfigPath string
	// LogWriter receives log output; stderr when nil.
	LogWriter io.Writer
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config         domain.Config
	ConfigProvider ports.ConfigProvider
	ConfigLoader   *config.FileLoader
	Logger         ports.Logger
	Events         *eventbus.Bus
	HistoryStore   *history.SQLiteStore
	Credentials    *credentials.EnvStore
	Registry       *ai.Registry
	Orchestrator   *orchestrator.Service
	Executor       *execution.Executor
	DoctorService  *doctor.Service
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	var log *logger.SlogLogger
	if opts.LogWriter != nil {
		log = logger.New(opts.LogWriter, opts.Verbose)
	} else {
		log = logger.NewStd(opts.Verbose)
	}

	store, err := history.Open(filesystem.ExpandPath(cfg.History.Database))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	pruneExpired(ctx, store, cfg, log)

	creds := credentials.NewEnvStore(cfgLoader, filesystem.AppPath(envFileName))

	registry := ai.NewRegistry()
	ai.NewFactory().RegisterConfigured(cfg, registry)

	orchOpts := orchestrator.OptionsFromConfig(cfg)
	orchOpts.Catalog = cache.NewFileCatalogCache(filepath.Join(filesystem.AppDir(), "cache", "catalogs"))

	bus := eventbus.New()
	orch := orchestrator.New(cfg, registry, creds, store, log, orchOpts)
	exec := execution.New(orch, store, bus, log, execution.Options{
		Debounce: cfg.GetDebounceInterval(),
		Timeout:  cfg.GetTimeout(),
	})

	doctorService := &doctor.Service{
		ConfigProvider: cfgLoader,
		History:        store,
		Credentials:    creds,
		Health:         orch,
	}

	return &Container{
		Config:         cfg,
		ConfigProvider: cfgLoader,
		ConfigLoader:   cfgLoader,
		Logger:         log,
		Events:         bus,
		HistoryStore:   store,
		Credentials:    creds,
		Registry:       registry,
		Orchestrator:   orch,
		Executor:       exec,
		DoctorService:  doctorService,
	}, nil
}

// Close releases the history database.
func (c *Container) Close() error {
	if c.HistoryStore == nil {
		return nil
	}
	return c.HistoryStore.Close()
}

// pruneExpired drops entries older than the retention window. Failures only log.
func pruneExpired(ctx context.Context, store *history.SQLiteStore, cfg domain.Config, log ports.Logger) {
	days := cfg.GetHistoryRetentionDays()
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := store.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Warn("history retention prune failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if removed > 0 {
		log.Debug("history retention pruned entries", map[string]interface{}{"removed": removed, "days": days})
	}
}
