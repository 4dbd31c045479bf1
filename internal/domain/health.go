package domain

import "time"

// HealthStatus indicates doctor check outcomes.
type HealthStatus string

const (
	HealthOK    HealthStatus = "ok"
	HealthWarn  HealthStatus = "warn"
	HealthError HealthStatus = "error"
)

// HealthCheck captures a single diagnostic result.
type HealthCheck struct {
	Name    string
	Status  HealthStatus
	Details string
}

// HealthReport aggregates checks.
type HealthReport struct {
	Checks []HealthCheck
}

// ProviderHealth is the outcome of validating one provider's credential.
type ProviderHealth struct {
	Healthy bool          `json:"healthy"`
	Message string        `json:"message"`
	Latency time.Duration `json:"-"`
}

// LatencyMS returns the check latency in milliseconds.
func (h ProviderHealth) LatencyMS() int64 {
	return h.Latency.Milliseconds()
}
