package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
)

// CheckHealth validates a provider's credential and reports how long it took.
func (s *Service) CheckHealth(ctx context.Context, providerID string) domain.ProviderHealth {
	start := time.Now()
	adapter, err := s.resolve(providerID)
	if err != nil {
		return domain.ProviderHealth{Message: err.Message, Latency: time.Since(start)}
	}

	key, hint := s.apiKey(ctx, providerID)
	if hint != "" {
		return domain.ProviderHealth{Message: hint, Latency: time.Since(start)}
	}

	ctx, cancel := context.WithTimeout(ctx, domain.DefaultHealthCheckTimeout)
	defer cancel()
	if !adapter.ValidateAPIKey(ctx, key) {
		return domain.ProviderHealth{Message: "credential rejected or provider unreachable", Latency: time.Since(start)}
	}
	return domain.ProviderHealth{Healthy: true, Message: "ok", Latency: time.Since(start)}
}

// CheckAllHealth checks every enabled provider concurrently. Each check is isolated:
// a panic in one adapter is reported as that provider being unhealthy.
func (s *Service) CheckAllHealth(ctx context.Context) map[string]domain.ProviderHealth {
	ids := s.enabledIDs()
	results := make(map[string]domain.ProviderHealth, len(ids))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			health := s.isolatedHealth(ctx, id)
			mu.Lock()
			results[id] = health
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

func (s *Service) isolatedHealth(ctx context.Context, id string) (health domain.ProviderHealth) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("health check panicked", fmt.Errorf("%v", r), map[string]interface{}{"provider": id})
			health = domain.ProviderHealth{Message: fmt.Sprintf("health check failed: %v", r)}
		}
	}()
	return s.CheckHealth(ctx, id)
}
