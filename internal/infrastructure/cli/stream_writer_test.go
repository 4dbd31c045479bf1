package cli

import (
	"bytes"
	"testing"

	"github.com/doeshing/multiprompt/internal/domain"
)

func TestStreamWriter_InterleavesWithHeaders(t *testing.T) {
	var out bytes.Buffer
	writer := NewStreamWriter(&out)
	a := domain.Target{ProviderID: "openai", ModelID: "gpt-4o"}
	b := domain.Target{ProviderID: "anthropic", ModelID: "claude"}

	writer.WriteDelta("r1", a, "Hello ")
	writer.WriteDelta("r1", a, "world")
	writer.WriteDelta("r2", b, "Bonjour")
	writer.WriteDelta("r1", a, "!")
	writer.Done()

	want := "[openai/gpt-4o]\nHello world\n\n[anthropic/claude]\nBonjour\n\n[openai/gpt-4o]\n!\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestStreamWriter_FinishFillsDroppedDeltas(t *testing.T) {
	tests := []struct {
		name    string
		deltas  []string
		content string
		want    string
	}{
		{"complete", []string{"a b"}, "a b", "[p/m]\na b\n"},
		{"missing suffix", []string{"a "}, "a b c", "[p/m]\na b c\n"},
		{"nothing streamed", nil, "a b", "[p/m]\na b\n"},
		{"diverged", []string{"x"}, "a b", "[p/m]\nx\n\n[p/m]\na b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			writer := NewStreamWriter(&out)
			target := domain.Target{ProviderID: "p", ModelID: "m"}
			for _, delta := range tt.deltas {
				writer.WriteDelta("r1", target, delta)
			}
			writer.Finish(&domain.PromptResponse{ID: "r1", ProviderID: "p", ModelID: "m", Content: tt.content})
			writer.Done()
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}
