package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/doeshing/multiprompt/internal/app"
)

func TestApplyGlobalFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		base        app.Options
		wantVerbose bool
		wantConfig  string
	}{
		{name: "none", args: []string{"hello"}},
		{name: "verbose long", args: []string{"--verbose", "hello"}, wantVerbose: true},
		{name: "verbose short after subcommand", args: []string{"history", "list", "-v"}, wantVerbose: true},
		{name: "config with other flags", args: []string{"-t", "offline/echo", "--config", "/tmp/mp.yaml", "--no-stream", "hi"}, wantConfig: "/tmp/mp.yaml"},
		{name: "config equals form", args: []string{"--config=/tmp/other.yaml", "doctor"}, wantConfig: "/tmp/other.yaml"},
		{name: "env verbose kept", args: []string{"hi"}, base: app.Options{Verbose: true}, wantVerbose: true},
		{name: "help does not panic", args: []string{"--help"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyGlobalFlags(tt.args, tt.base)
			if got.Verbose != tt.wantVerbose {
				t.Errorf("Verbose = %v, want %v", got.Verbose, tt.wantVerbose)
			}
			if got.ConfigPath != tt.wantConfig {
				t.Errorf("ConfigPath = %q, want %q", got.ConfigPath, tt.wantConfig)
			}
		})
	}
}

func TestExecute_ConfigFlagSelectsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("MULTIPROMPT_CONFIG", "")
	configPath := filepath.Join(dir, "custom", "config.yaml")

	err := Execute(context.Background(), []string{"--config", configPath, "config", "path"}, app.Options{LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config not written to --config path: %v", err)
	}
}
