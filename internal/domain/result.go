package domain

import "time"

// ExecutionResult is the sole channel through which the orchestrator reports a call outcome.
type ExecutionResult[T any] struct {
	Success    bool
	Data       T
	Err        *AdapterError
	ProviderID string
	ModelID    string
	Duration   time.Duration
}

// DurationMS reports the call duration in milliseconds.
func (r ExecutionResult[T]) DurationMS() int64 {
	return r.Duration.Milliseconds()
}

// Failure returns the error as a plain error value, nil on success.
func (r ExecutionResult[T]) Failure() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// CredentialResult is returned by the credential collaborator.
type CredentialResult struct {
	Success     bool
	APIKey      string
	UserMessage string
}
