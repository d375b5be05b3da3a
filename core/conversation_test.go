package orchestration

import (
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/koscakluka/ema-duet/core/turns"
)

func committedTurn(id int, kind turns.Kind, text string) *turns.Turn {
	turn := turns.New(id, turns.SpeakerForSlot(id), kind)
	turn.Text = text
	return turn
}

func TestCommitRejectsOutOfOrderTurns(t *testing.T) {
	c := newConversationState(12)

	if err := c.commit(committedTurn(1, turns.KindRegular, "one")); err != nil {
		t.Fatalf("expected first commit to succeed, got %v", err)
	}
	if err := c.commit(committedTurn(3, turns.KindRegular, "three")); err != nil {
		t.Fatalf("expected gaps to be allowed, got %v", err)
	}

	for _, id := range []int{3, 2} {
		if err := c.commit(committedTurn(id, turns.KindRegular, "again")); !errors.Is(err, ErrOutOfOrder) {
			t.Fatalf("expected out of order error for turn %d, got %v", id, err)
		}
	}
	if c.turnCount != 2 || c.lastCommitted != 3 {
		t.Fatalf("expected rejected commits to leave state unchanged, got count %d last %d", c.turnCount, c.lastCommitted)
	}
}

func TestCommitKeepsBridgingOutOfHistory(t *testing.T) {
	c := newConversationState(12)
	_ = c.commit(committedTurn(1, turns.KindRegular, "one"))
	_ = c.commit(committedTurn(2, turns.KindBridging, "bridge"))

	if c.turnCount != 2 {
		t.Fatalf("expected bridging turn to count toward the budget, got %d", c.turnCount)
	}
	if len(c.history) != 1 || c.history[0].TurnID != 1 {
		t.Fatalf("expected only the regular turn in history, got %+v", c.history)
	}
}

func TestCommitBoundsHistoryWindow(t *testing.T) {
	c := newConversationState(3)
	for id := 1; id <= 5; id++ {
		_ = c.commit(committedTurn(id, turns.KindRegular, "line"))
	}

	if len(c.history) != 3 || c.history[0].TurnID != 3 {
		t.Fatalf("expected the last 3 turns in history, got %+v", c.history)
	}

	snapshot := c.Snapshot()
	snapshot.History[0].Text = "changed"
	if c.history[0].Text == "changed" {
		t.Fatalf("expected snapshot history to be a copy")
	}
}

func TestApplySummaryIsIdempotent(t *testing.T) {
	c := newConversationState(12)
	for id := 1; id <= 6; id++ {
		_ = c.commit(committedTurn(id, turns.KindRegular, "line"))
	}

	if !c.summaryDue(6) {
		t.Fatalf("expected summary to be due after 6 turns")
	}
	if !c.applySummary(6, "first") {
		t.Fatalf("expected first summary to apply")
	}
	if c.summaryDue(6) {
		t.Fatalf("expected no summary due without new turns")
	}
	if c.applySummary(6, "second") || c.applySummary(4, "older") {
		t.Fatalf("expected repeated or older summaries to be ignored")
	}
	if c.summary != "first" {
		t.Fatalf("expected summary to stay unchanged, got %q", c.summary)
	}
}

func TestSetTopicReportsChanges(t *testing.T) {
	c := newConversationState(12)
	now := time.Now()
	state := topic.State{Value: "tides", Source: topic.SourceEnv}

	if !c.setTopic(state, now) {
		t.Fatalf("expected first topic to be a change")
	}
	if c.setTopic(state, now.Add(time.Second)) {
		t.Fatalf("expected same topic not to be a change")
	}
	if !c.setTopic(topic.State{Value: "tides", Source: topic.SourceChat}, now) {
		t.Fatalf("expected a new source to be a change")
	}
}
