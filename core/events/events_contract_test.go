package events

import (
	"errors"
	"testing"

	"github.com/koscakluka/ema-duet/core/turns"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	turn := *turns.New(1, turns.SpeakerA, turns.KindRegular)

	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "session state changed", event: NewSessionStateChanged("STARTING", "RUNNING", ""), expected: KindSessionStateChanged},
		{name: "summary refreshed", event: NewSummaryRefreshed(6, 120), expected: KindSummaryRefreshed},
		{name: "turn ready", event: NewTurnReady(turn), expected: KindTurnReady},
		{name: "generation failed", event: NewGenerationFailed(1, turns.SpeakerA, 1, false, errors.New("boom")), expected: KindGenerationFailed},
		{name: "bridging inserted", event: NewBridgingInserted(1, turns.SpeakerA, "Let me think."), expected: KindBridgingInserted},
		{name: "turn presented", event: NewTurnPresented(turn), expected: KindTurnPresented},
		{name: "presentation failed", event: NewPresentationFailed(1, turns.SpeakerA, 2, errors.New("timeout")), expected: KindPresentationFailed},
		{name: "turn committed", event: NewTurnCommitted(turn, "", 0), expected: KindTurnCommitted},
		{name: "topic changed", event: NewTopicChanged("a", "b", "chat"), expected: KindTopicChanged},
		{name: "stage idle", event: NewStageIdle(3, "pending"), expected: KindStageIdle},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestTurnEventsCarryTurnCopies(t *testing.T) {
	turn := *turns.New(4, turns.SpeakerB, turns.KindRegular)
	event := NewTurnPresented(turn)

	turn.Text = "changed"
	if event.Turn.Text != "" {
		t.Fatalf("expected event to keep its own copy, got %q", event.Turn.Text)
	}
}
