package llms

import (
	"strings"
	"testing"
)

func TestTurnPromptIncludesContextSections(t *testing.T) {
	instructions, input := TurnPrompt(TurnRequest{
		TurnID:       4,
		Speaker:      "B",
		Topic:        "tidal power",
		Summary:      "A likes tides.",
		History:      []HistoryEntry{{TurnID: 3, Speaker: "A", Text: "Tides are predictable."}},
		Directives:   []string{"Ask a question."},
		MaxSentences: 3,
	})

	if !strings.Contains(instructions, "1 to 3 sentences") {
		t.Fatalf("expected sentence bound in instructions, got %q", instructions)
	}
	if !strings.Contains(instructions, "speaker B") {
		t.Fatalf("expected default persona for B, got %q", instructions)
	}
	for _, want := range []string{"Topic: tidal power", "Turn: 4", "- Ask a question.", "A likes tides.", "A: Tides are predictable."} {
		if !strings.Contains(input, want) {
			t.Fatalf("expected input to contain %q, got %q", want, input)
		}
	}
}

func TestTurnPromptPrefersConfiguredPersona(t *testing.T) {
	instructions, _ := TurnPrompt(TurnRequest{Speaker: "A", Persona: "You are a pirate."})
	if !strings.HasPrefix(instructions, "You are a pirate.") {
		t.Fatalf("expected custom persona, got %q", instructions)
	}
}

func TestSummaryPromptForbidsNewFacts(t *testing.T) {
	instructions, input := SummaryPrompt(SummaryRequest{
		Previous: "Earlier summary.",
		History:  []HistoryEntry{{Speaker: "A", Text: "Hello."}},
	})
	if !strings.Contains(instructions, "Do not add new facts") {
		t.Fatalf("expected no-new-facts rule, got %q", instructions)
	}
	if !strings.Contains(input, "Earlier summary.") || !strings.Contains(input, "A: Hello.") {
		t.Fatalf("expected previous summary and history, got %q", input)
	}
}
