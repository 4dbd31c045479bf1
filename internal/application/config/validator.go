package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
)

// Validate ensures config structure is consistent.
func Validate(cfg domain.Config) error {
	if len(cfg.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	if err := cfg.ValidateConsistency(); err != nil {
		return err
	}
	if err := validateExecution(cfg.Execution); err != nil {
		return err
	}
	if err := validateHistory(cfg.History); err != nil {
		return err
	}
	if err := validateServer(cfg.Server); err != nil {
		return err
	}
	if cfg.Preferences.TimeoutSeconds < 0 {
		return fmt.Errorf("preferences.timeout must be >= 0")
	}
	return nil
}

func validateExecution(exec domain.ExecutionSettings) error {
	if exec.RetryAttempts < 0 {
		return fmt.Errorf("execution.retry_attempts must be >= 0")
	}
	if err := validateDuration("execution.retry_delay", exec.RetryDelay); err != nil {
		return err
	}
	return validateDuration("execution.debounce", exec.Debounce)
}

func validateDuration(field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

func validateHistory(history domain.HistorySettings) error {
	if history.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must be >= 0")
	}
	return nil
}

func validateServer(server domain.ServerSettings) error {
	if server.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(server.Listen); err != nil {
		return fmt.Errorf("server.listen invalid: %w", err)
	}
	return nil
}
