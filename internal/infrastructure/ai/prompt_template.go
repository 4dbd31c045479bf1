package ai

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/doeshing/multiprompt/internal/domain"
)

// userTemplate folds prior conversation context into the user turn.
var userTemplate = template.Must(template.New("user").Parse(
	`{{if .Context}}Conversation so far:
{{.Context}}

Continue the conversation. {{end}}{{.Prompt}}`))

type promptMessage struct {
	Role    string
	Content string
}

type templateData struct {
	Prompt  string
	Context string
}

// renderPromptMessages builds the message list for a text call: an optional system
// message followed by one user message.
func renderPromptMessages(prompt string, opts domain.GenerationOptions) ([]promptMessage, error) {
	var messages []promptMessage
	if system := strings.TrimSpace(opts.SystemPrompt); system != "" {
		messages = append(messages, promptMessage{Role: "system", Content: system})
	}

	var buf bytes.Buffer
	data := templateData{Prompt: strings.TrimSpace(prompt), Context: strings.TrimSpace(opts.Context)}
	if err := userTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	messages = append(messages, promptMessage{Role: "user", Content: buf.String()})
	return messages, nil
}

// splitSystemMessages separates system messages for vendors that take the system
// prompt as a separate field.
func splitSystemMessages(messages []promptMessage) (string, []promptMessage) {
	var (
		systemLines []string
		chat        []promptMessage
	)
	for _, msg := range messages {
		if strings.EqualFold(msg.Role, "system") {
			systemLines = append(systemLines, msg.Content)
			continue
		}
		chat = append(chat, msg)
	}
	return strings.TrimSpace(strings.Join(systemLines, "\n")), chat
}
