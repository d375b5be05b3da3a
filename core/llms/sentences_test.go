package llms

import "testing"

func TestLimitSentencesKeepsLeadingSentences(t *testing.T) {
	got := LimitSentences("First point. Second point!  Third point? Fourth", 2)
	if got != "First point. Second point!" {
		t.Fatalf("expected two sentences, got %q", got)
	}
}

func TestLimitSentencesKeepsShortText(t *testing.T) {
	got := LimitSentences("  Only   one\nsentence here  ", 2)
	if got != "Only one sentence here" {
		t.Fatalf("expected normalized text, got %q", got)
	}
}

func TestCountSentencesHandlesEllipsis(t *testing.T) {
	if got := CountSentences("Well… maybe. Or not?!"); got != 3 {
		t.Fatalf("expected 3 sentences, got %d", got)
	}
}

func TestCountSentencesIgnoresStrayPunctuation(t *testing.T) {
	if got := CountSentences("Sure. ... !"); got != 1 {
		t.Fatalf("expected 1 sentence, got %d", got)
	}
	if got := CountSentences(""); got != 0 {
		t.Fatalf("expected 0 sentences for empty text, got %d", got)
	}
}
