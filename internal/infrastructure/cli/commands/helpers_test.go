package commands

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/doeshing/multiprompt/internal/app"
	"github.com/doeshing/multiprompt/internal/application/execution"
	"github.com/doeshing/multiprompt/internal/domain"
	configinfra "github.com/doeshing/multiprompt/internal/infrastructure/config"
)

func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := configinfra.DefaultConfig()
	cfg.Providers = []domain.ProviderSettings{{ID: "offline", Enabled: true}}
	cfg.Preferences.DefaultTargets = []string{"offline/echo"}
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

// seedEntries submits prompts to offline/echo and returns their durable ids, oldest first.
func seedEntries(t *testing.T, container *app.Container, prompts ...string) []int64 {
	t.Helper()
	target := domain.Target{ProviderID: "offline", ModelID: "echo"}
	ids := make([]int64, 0, len(prompts))
	for _, prompt := range prompts {
		summary, err := container.Executor.SubmitPrompt(context.Background(), execution.SubmitRequest{
			Prompt:  prompt,
			Targets: []domain.Target{target},
		})
		if err != nil {
			t.Fatalf("SubmitPrompt(%q) error: %v", prompt, err)
		}
		durableID, ok := container.Executor.DurableEntryID(summary.EntryID)
		if !ok {
			t.Fatalf("entry for %q was not persisted", prompt)
		}
		ids = append(ids, durableID)
	}
	return ids
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
