package domain

import "time"

// EventType names a state change published by the executor.
type EventType string

const (
	EventEntryCreated    EventType = "entry.created"
	EventEntryCompleted  EventType = "entry.completed"
	EventEntryDeleted    EventType = "entry.deleted"
	EventResponseStarted EventType = "response.started"
	EventResponseDelta   EventType = "response.delta"
	EventResponseDone    EventType = "response.done"
	EventHistoryReloaded EventType = "history.reloaded"
)

// Event is one published state change. Delta is set only for response.delta.
type Event struct {
	Type       EventType `json:"type"`
	EntryID    string    `json:"entry_id,omitempty"`
	ResponseID string    `json:"response_id,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	ModelID    string    `json:"model_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Delta      string    `json:"delta,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}
