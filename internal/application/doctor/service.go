package doctor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	appconfig "github.com/doeshing/multiprompt/internal/application/config"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

// HistoryProbe is the part of the history store the doctor inspects.
type HistoryProbe interface {
	Ping(ctx context.Context) error
	Path() string
}

// HealthChecker validates provider credentials.
type HealthChecker interface {
	CheckAllHealth(ctx context.Context) map[string]domain.ProviderHealth
}

// EnvFileChecker reports a dotenv file that exists but is malformed.
type EnvFileChecker interface {
	EnvFileError() error
}

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider ports.ConfigProvider
	History        HistoryProbe
	Credentials    EnvFileChecker
	Health         HealthChecker
	// SkipNetwork leaves out provider key validation.
	SkipNetwork bool
}

// Run executes checks and returns a report.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	if err := appconfig.Validate(cfg); err != nil {
		checks = append(checks, fail("Config file", err.Error()))
	} else {
		checks = append(checks, ok("Config file", fmt.Sprintf("loaded %s, %d providers", cfg.ConfigFormatVersion, len(cfg.Providers))))
	}

	if s.History != nil {
		if err := s.History.Ping(ctx); err != nil {
			checks = append(checks, fail("History database", err.Error()))
		} else {
			checks = append(checks, ok("History database", s.History.Path()))
		}
	} else {
		checks = append(checks, warn("History database", "not opened, history is kept in memory only"))
	}

	if s.Credentials != nil {
		if err := s.Credentials.EnvFileError(); err != nil {
			checks = append(checks, warn("Env file", err.Error()))
		}
	}

	if s.Health == nil || s.SkipNetwork {
		checks = append(checks, warn("Providers", "key validation skipped"))
		return domain.HealthReport{Checks: checks}, nil
	}
	checks = append(checks, providerChecks(s.Health.CheckAllHealth(ctx))...)

	return domain.HealthReport{Checks: checks}, nil
}

func providerChecks(results map[string]domain.ProviderHealth) []domain.HealthCheck {
	if len(results) == 0 {
		return []domain.HealthCheck{warn("Providers", "no enabled providers")}
	}
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	checks := make([]domain.HealthCheck, 0, len(ids))
	for _, id := range ids {
		health := results[id]
		name := "Provider " + id
		if health.Healthy {
			checks = append(checks, ok(name, fmt.Sprintf("%s (%dms)", health.Message, health.LatencyMS())))
			continue
		}
		// a missing key is a setup step, not a breakage
		if strings.HasPrefix(health.Message, "set ") {
			checks = append(checks, warn(name, health.Message))
			continue
		}
		checks = append(checks, fail(name, health.Message))
	}
	return checks
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
