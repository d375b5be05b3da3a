package llms

import (
	"fmt"
	"strings"
	"time"
)

// AvoidRepeatingLast is how many recent lines a speaker must not restate.
const AvoidRepeatingLast = 3

// TurnRequest is everything a generator needs to write the next line.
type TurnRequest struct {
	TurnID  int
	Speaker string
	Persona string

	Topic   string
	Summary string
	History []HistoryEntry

	Directives   []string
	MaxSentences int
}

// Generation is a generated line with its provenance.
type Generation struct {
	Text    string
	Model   string
	Latency time.Duration
}

type SummaryRequest struct {
	Previous     string
	History      []HistoryEntry
	MaxSentences int
}

const defaultPersonaA = `You are speaker A in a live two-person discussion broadcast.
You are curious and concrete. You push the conversation forward with specific examples.`

const defaultPersonaB = `You are speaker B in a live two-person discussion broadcast.
You are thoughtful and a little sceptical. You test claims and offer counterpoints.`

// DefaultPersona returns the neutral built-in persona for a speaker.
func DefaultPersona(speaker string) string {
	if speaker == "B" {
		return defaultPersonaB
	}
	return defaultPersonaA
}

// TurnPrompt renders a request into system instructions and the user input.
func TurnPrompt(req TurnRequest) (instructions string, input string) {
	persona := req.Persona
	if persona == "" {
		persona = DefaultPersona(req.Speaker)
	}

	maxSentences := req.MaxSentences
	if maxSentences <= 0 {
		maxSentences = 2
	}

	var rules strings.Builder
	rules.WriteString(persona)
	rules.WriteString("\n\nRules:\n")
	fmt.Fprintf(&rules, "- Reply with 1 to %d sentences of plain spoken text.\n", maxSentences)
	rules.WriteString("- No lists, markdown, stage directions or speaker labels.\n")
	fmt.Fprintf(&rules, "- Do not restate anything said in the last %d replies.\n", AvoidRepeatingLast)
	rules.WriteString("- Stay on the topic.")

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&b, "Turn: %d (you are speaker %s)\n", req.TurnID, req.Speaker)
	if len(req.Directives) > 0 {
		b.WriteString("Extra rules:\n")
		for _, directive := range req.Directives {
			fmt.Fprintf(&b, "- %s\n", directive)
		}
	}
	if req.Summary != "" {
		fmt.Fprintf(&b, "Running summary:\n%s\n", req.Summary)
	}
	if len(req.History) > 0 {
		b.WriteString("Last replies:\n")
		for _, entry := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", entry.Speaker, entry.Text)
		}
	}
	b.WriteString("Your reply:")

	return rules.String(), b.String()
}

// SummaryPrompt renders a summary refresh request.
func SummaryPrompt(req SummaryRequest) (instructions string, input string) {
	maxSentences := req.MaxSentences
	if maxSentences <= 0 {
		maxSentences = 5
	}

	instructions = fmt.Sprintf(`You compress a running discussion into a short summary of at most %d sentences.
Only restate what was said. Do not add new facts, opinions or conclusions.`, maxSentences)

	var b strings.Builder
	if req.Previous != "" {
		fmt.Fprintf(&b, "Previous summary:\n%s\n", req.Previous)
	}
	b.WriteString("Recent replies:\n")
	for _, entry := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", entry.Speaker, entry.Text)
	}
	b.WriteString("Updated summary:")

	return instructions, b.String()
}
