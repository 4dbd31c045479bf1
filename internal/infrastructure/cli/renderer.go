package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/doeshing/multiprompt/internal/application/execution"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/cli/helpers"
)

// RenderResponses prints every leg of an entry, content first.
func RenderResponses(out io.Writer, entry *domain.PromptEntry, responseIDs []string) {
	for i, resp := range selectResponses(entry, responseIDs) {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "[%s]\n", resp.Target())
		if resp.Content != "" {
			fmt.Fprintln(out, strings.TrimRight(resp.Content, "\n"))
		}
	}
}

// RenderSummary prints one status line per leg, the outcome and remediation hints.
func RenderSummary(out io.Writer, entry *domain.PromptEntry, responseIDs []string, summary execution.Summary) {
	fmt.Fprintln(out)
	for _, resp := range selectResponses(entry, responseIDs) {
		line := fmt.Sprintf("%s %-40s %8s", helpers.StatusLabel(resp.Status), resp.Target(), helpers.FormatDuration(resp.Duration))
		if resp.Status == domain.ResponseSuccess {
			line += fmt.Sprintf("  %s chars", humanize.Comma(int64(len([]rune(resp.Content)))))
		}
		if resp.Error != "" {
			line += "  " + resp.Error
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}

	fmt.Fprintf(out, "%s: %d succeeded, %d failed, %d cancelled\n",
		strings.ReplaceAll(string(summary.Outcome), "_", " "),
		summary.Succeeded, summary.Failed, summary.Cancelled)
	for _, hint := range summary.Hints() {
		fmt.Fprintf(out, "hint: %s\n", hint)
	}
}

// RenderJSON writes the entry and summary as one JSON document.
func RenderJSON(out io.Writer, entry *domain.PromptEntry, responseIDs []string, summary execution.Summary) error {
	payload := struct {
		Prompt    string                   `json:"prompt"`
		Responses []*domain.PromptResponse `json:"responses"`
		Summary   execution.Summary        `json:"summary"`
	}{
		Prompt:    entry.Prompt,
		Responses: selectResponses(entry, responseIDs),
		Summary:   summary,
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// selectResponses keeps the legs of this submission; continuations carry older legs too.
func selectResponses(entry *domain.PromptEntry, responseIDs []string) []*domain.PromptResponse {
	if len(responseIDs) == 0 {
		return entry.Responses
	}
	out := make([]*domain.PromptResponse, 0, len(responseIDs))
	for _, id := range responseIDs {
		if resp, ok := entry.Response(id); ok {
			out = append(out, resp)
		}
	}
	return out
}
