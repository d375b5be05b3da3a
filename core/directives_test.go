package orchestration

import (
	"slices"
	"testing"

	"github.com/koscakluka/ema-duet/core/turns"
)

func TestDirectivesFor(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		slotID   int
		kind     turns.Kind
		expected []string
	}{
		{name: "opening", slotID: 1, kind: turns.KindRegular, expected: []string{directiveIntroA}},
		{name: "reply to opening", slotID: 2, kind: turns.KindRegular, expected: []string{directiveIntroB}},
		{name: "plain", slotID: 4, kind: turns.KindRegular, expected: nil},
		{name: "question", slotID: 3, kind: turns.KindRegular, expected: []string{directiveQuestion}},
		{name: "roundup", slotID: 12, kind: turns.KindRegular, expected: []string{directiveRoundup, directiveQuestion}},
		{name: "final round", slotID: 23, kind: turns.KindRegular, expected: []string{directiveFinal}},
		{name: "final round question", slotID: 24, kind: turns.KindRegular, expected: []string{directiveRoundup, directiveQuestion, directiveFinal}},
		{name: "closing", slotID: 25, kind: turns.KindClosing, expected: []string{directiveClosing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := directivesFor(cfg, tt.slotID, tt.kind); !slices.Equal(got, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
