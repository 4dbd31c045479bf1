package commands

import (
	"strings"
	"testing"
)

func TestProviders_DisableEnablePersists(t *testing.T) {
	container := newTestContainer(t)

	if _, err := run(t, NewProvidersCommand(container), "disable", "offline"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if container.Orchestrator.IsEnabled("offline") {
		t.Error("offline should be disabled in the running orchestrator")
	}
	cfg, err := container.ConfigProvider.Load(t.Context())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if settings, _ := cfg.FindProvider("offline"); settings.Enabled {
		t.Error("disabled flag was not saved")
	}

	out, err := run(t, NewProvidersCommand(container), "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "offline") || !strings.Contains(out, "false") {
		t.Errorf("list output:\n%s", out)
	}

	if _, err := run(t, NewProvidersCommand(container), "enable", "offline"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !container.Orchestrator.IsEnabled("offline") {
		t.Error("offline should be enabled again")
	}

	if _, err := run(t, NewProvidersCommand(container), "enable", "nosuch"); err == nil {
		t.Error("unknown provider should be rejected")
	}
}

func TestProviders_Health(t *testing.T) {
	container := newTestContainer(t)

	out, err := run(t, NewProvidersCommand(container), "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, "[OK] offline") {
		t.Errorf("health output:\n%s", out)
	}
}
