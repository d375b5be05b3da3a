package orchestration

import (
	"testing"

	"github.com/koscakluka/ema-duet/core/turns"
)

func TestSlotQueueIsFIFO(t *testing.T) {
	var q slotQueue
	for id := 1; id <= 3; id++ {
		q.Push(newSlot(id, turns.KindRegular))
	}

	if head := q.Head(); head.id != 1 || head.speaker != turns.SpeakerA {
		t.Fatalf("expected slot 1 for A at head, got %+v", head)
	}
	if q.Find(2).speaker != turns.SpeakerB {
		t.Fatalf("expected slot 2 to belong to B")
	}
	if popped := q.Pop(); popped.id != 1 || q.Len() != 2 || q.Head().id != 2 {
		t.Fatalf("unexpected queue after pop: popped %d, len %d", popped.id, q.Len())
	}
	if q.Find(1) != nil {
		t.Fatalf("expected popped slot to be gone")
	}
}

func TestSlotReadiness(t *testing.T) {
	s := newSlot(1, turns.KindRegular)
	if !s.needsDispatch() || s.ready() {
		t.Fatalf("expected a fresh slot to need a production")
	}

	s.inflight = true
	if s.needsDispatch() {
		t.Fatalf("expected in-flight slot not to be dispatched again")
	}

	turn := turns.New(1, turns.SpeakerA, turns.KindRegular)
	_ = turn.Transition(turns.StateReady)
	s.inflight, s.turn = false, turn
	if !s.ready() || s.needsDispatch() {
		t.Fatalf("expected slot with a READY turn to be presentable")
	}

	status := (&slotQueue{slots: []*slot{s}}).Status()
	if len(status) != 1 || !status[0].Ready || status[0].TurnID != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}
