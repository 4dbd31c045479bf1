package commands

import (
	"os"
	"strings"
	"testing"
)

func TestConfig_GetSet(t *testing.T) {
	container := newTestContainer(t)

	out, err := run(t, NewConfigCommand(container), "get", "execution.retry_attempts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != "2" {
		t.Errorf("get = %q, want 2", out)
	}

	if _, err := run(t, NewConfigCommand(container), "set", "execution.retry_attempts", "4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err = run(t, NewConfigCommand(container), "get", "--key", "execution.retry_attempts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != "4" {
		t.Errorf("get after set = %q, want 4", out)
	}

	if _, err := os.Stat(container.ConfigLoader.Path() + ".bak"); err != nil {
		t.Errorf("set should leave a backup: %v", err)
	}
}

func TestConfig_SetRejectsInvalid(t *testing.T) {
	container := newTestContainer(t)

	if _, err := run(t, NewConfigCommand(container), "set", "execution.retry_delay", "soon"); err == nil {
		t.Error("an unparsable duration should fail validation")
	}
	if _, err := run(t, NewConfigCommand(container), "set", "no.such.key", "1"); err == nil {
		t.Error("unknown key should be rejected")
	}
	if _, err := run(t, NewConfigCommand(container), "get", "no.such.key"); err == nil {
		t.Error("unknown key should not be found")
	}
}

func TestConfig_DiffAndValidate(t *testing.T) {
	container := newTestContainer(t)

	out, err := run(t, NewConfigCommand(container), "diff")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(out, "openai") || strings.Contains(out, MsgNoDifferencesFromDefault) {
		t.Errorf("diff should show the customised providers:\n%s", out)
	}

	out, err = run(t, NewConfigCommand(container), "validate")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if strings.TrimSpace(out) != MsgConfigurationValid {
		t.Errorf("validate = %q", out)
	}

	out, err = run(t, NewConfigCommand(container), "path")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if strings.TrimSpace(out) != container.ConfigLoader.Path() {
		t.Errorf("path = %q", out)
	}
}
