package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doeshing/multiprompt/internal/app"
	configinfra "github.com/doeshing/multiprompt/internal/infrastructure/config"
	"github.com/doeshing/multiprompt/internal/domain"
)

// newTestContainer builds a container over a temp home holding only the offline provider.
func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := configinfra.DefaultConfig()
	cfg.Providers = []domain.ProviderSettings{{ID: "offline", Enabled: true}}
	cfg.Preferences.DefaultTargets = []string{"offline/echo", "offline/heuristic"}
	cfg.History.Database = filepath.Join(dir, "history.db")

	configPath := filepath.Join(dir, "config.yaml")
	if err := configinfra.NewFileLoader(configPath).Save(context.Background(), cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	container, err := app.BuildContainer(context.Background(), app.Options{ConfigPath: configPath, LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("BuildContainer() error: %v", err)
	}
	t.Cleanup(func() { container.Close() })
	return container
}

// execute runs a fresh root command so flag values never leak between runs.
func execute(t *testing.T, container *app.Container, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd(container)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
