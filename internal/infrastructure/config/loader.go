package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/filesystem"
	"github.com/doeshing/multiprompt/internal/ports"
)

// EnvConfigPath overrides the config location.
const EnvConfigPath = "MULTIPROMPT_CONFIG"

// FileLoader loads YAML configuration from ~/.multiprompt/config.yaml (overridable via MULTIPROMPT_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader. An empty path uses the default location.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Path reports the file the loader reads and writes.
func (l *FileLoader) Path() string {
	return l.resolvePath()
}

// Load implements ports.ConfigProvider. A missing file is created with defaults.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := write(path, cfg); err != nil {
				return domain.Config{}, err
			}
			return cfg, nil
		}
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return hydrateDefaults(cfg), nil
}

// Save implements ports.ConfigSaver.
func (l *FileLoader) Save(_ context.Context, cfg domain.Config) error {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return err
	}
	return write(path, cfg)
}

// Backup copies the current file next to itself with a .bak suffix.
func (l *FileLoader) Backup() (string, error) {
	path := l.resolvePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}
	backup := path + ".bak"
	if err := os.WriteFile(backup, data, domain.SecureFilePermissions); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backup, nil
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath)
	}
	if custom := os.Getenv(EnvConfigPath); custom != "" {
		return filesystem.ExpandPath(custom)
	}
	return filesystem.AppPath("config.yaml")
}

func ensureConfigDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, domain.DirectoryPermissions)
}

func write(path string, cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, raw, domain.SecureFilePermissions)
}

// DefaultConfig is written on first run.
func DefaultConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		Preferences: domain.Preferences{
			DefaultTargets: []string{"openai/gpt-4o-mini", "anthropic/claude-3-5-haiku-latest"},
			Stream:         true,
			TimeoutSeconds: int(domain.DefaultSubmissionTimeout.Seconds()),
		},
		Providers: []domain.ProviderSettings{
			{ID: "openai", Enabled: true, AuthEnvVar: "OPENAI_API_KEY", OrgEnvVar: "OPENAI_ORG_ID"},
			{ID: "anthropic", Enabled: true, AuthEnvVar: "ANTHROPIC_API_KEY"},
			{ID: "ollama", Enabled: false, Endpoint: "http://localhost:11434"},
			{ID: "offline", Enabled: true},
		},
		Execution: domain.ExecutionSettings{
			RetryAttempts: domain.DefaultRetryAttempts,
			RetryDelay:    domain.DefaultRetryDelay.String(),
			Debounce:      domain.DefaultDebounceInterval.String(),
		},
		History: domain.HistorySettings{
			Database:      "~/" + filesystem.AppDirName + "/history.db",
			RetentionDays: domain.DefaultHistoryRetainDays,
		},
		Server: domain.ServerSettings{
			Listen: domain.DefaultListenAddress,
		},
	}
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1"
	}
	if cfg.Preferences.TimeoutSeconds == 0 {
		cfg.Preferences.TimeoutSeconds = int(domain.DefaultSubmissionTimeout.Seconds())
	}
	if cfg.Execution.RetryDelay == "" {
		cfg.Execution.RetryDelay = domain.DefaultRetryDelay.String()
	}
	if cfg.Execution.Debounce == "" {
		cfg.Execution.Debounce = domain.DefaultDebounceInterval.String()
	}
	if cfg.History.Database == "" {
		cfg.History.Database = "~/" + filesystem.AppDirName + "/history.db"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = domain.DefaultListenAddress
	}
	return cfg
}

var (
	_ ports.ConfigProvider = (*FileLoader)(nil)
	_ ports.ConfigSaver    = (*FileLoader)(nil)
)
