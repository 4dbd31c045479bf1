package domain

import "time"

// EntryStatus is the overall status of a prompt submission.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryError     EntryStatus = "error"
	EntryCancelled EntryStatus = "cancelled"
)

// ResponseStatus is the status of one (provider, model) leg.
type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "pending"
	ResponseStreaming ResponseStatus = "streaming"
	ResponseSuccess   ResponseStatus = "success"
	ResponseError     ResponseStatus = "error"
	ResponseCancelled ResponseStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s ResponseStatus) Terminal() bool {
	return s == ResponseSuccess || s == ResponseError || s == ResponseCancelled
}

// Target is one (provider, model) pair a prompt fans out to.
type Target struct {
	ProviderID string `json:"provider"`
	ModelID    string `json:"model"`
}

func (t Target) String() string {
	return t.ProviderID + "/" + t.ModelID
}

// PromptEntry is one user submission and its ordered responses.
type PromptEntry struct {
	ID        string            `json:"id"`
	Prompt    string            `json:"prompt"`
	Providers []string          `json:"providers"`
	Models    []string          `json:"models"`
	CreatedAt time.Time         `json:"created_at"`
	Status    EntryStatus       `json:"status"`
	Responses []*PromptResponse `json:"responses"`
}

// PromptResponse is one (provider, model) leg of an entry.
type PromptResponse struct {
	ID          string         `json:"id"`
	EntryID     string         `json:"entry_id"`
	ProviderID  string         `json:"provider"`
	ModelID     string         `json:"model"`
	Content     string         `json:"content"`
	Status      ResponseStatus `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   ErrorCode      `json:"error_code,omitempty"`
	Cancellable bool           `json:"cancellable,omitempty"`
	// Prompt echoes the prompt this leg answered; continuations differ from the entry prompt.
	Prompt string `json:"prompt,omitempty"`
}

// Target returns the leg's (provider, model) pair.
func (r *PromptResponse) Target() Target {
	return Target{ProviderID: r.ProviderID, ModelID: r.ModelID}
}

// Clone returns a deep copy safe to hand to callers outside the executor lock.
func (e *PromptEntry) Clone() *PromptEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Providers = append([]string(nil), e.Providers...)
	out.Models = append([]string(nil), e.Models...)
	out.Responses = make([]*PromptResponse, 0, len(e.Responses))
	for _, resp := range e.Responses {
		copied := *resp
		out.Responses = append(out.Responses, &copied)
	}
	return &out
}

// Response finds a response by id.
func (e *PromptEntry) Response(id string) (*PromptResponse, bool) {
	for _, resp := range e.Responses {
		if resp.ID == id {
			return resp, true
		}
	}
	return nil, false
}

// StoredResponse is a durable response record together with its durable id.
type StoredResponse struct {
	DurableID int64
	Response  PromptResponse
}

// StoredEntry is a durable entry record, its durable id, and its responses in order.
type StoredEntry struct {
	DurableID int64
	Entry     PromptEntry
	Responses []StoredResponse
}

// HistoryQuery narrows a history load.
type HistoryQuery struct {
	Limit  int
	Search string
}
