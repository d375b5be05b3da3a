package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-duet/core/turns"
)

// slot is a queue position. It is pending while a production is in flight
// and holds a READY turn afterwards.
type slot struct {
	id      int
	speaker turns.Speaker
	kind    turns.Kind

	turn *turns.Turn
	// attempts counts dispatched productions, bridging excluded.
	attempts int
	// seq identifies the latest dispatch so stale results can be dropped.
	seq      int
	inflight bool
	cancel   context.CancelFunc
	bridging bool
	// retryAt delays the next bridging dispatch after a failed one.
	retryAt time.Time
	// topic is the topic value the in-flight production was requested with.
	topic string
}

func newSlot(id int, kind turns.Kind) *slot {
	return &slot{id: id, speaker: turns.SpeakerForSlot(id), kind: kind}
}

func (s *slot) ready() bool {
	return s != nil && s.turn != nil && s.turn.State == turns.StateReady
}

func (s *slot) needsDispatch() bool {
	return s != nil && !s.inflight && s.turn == nil
}

func (s *slot) stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SlotStatus is the externally visible view of a queue slot.
type SlotStatus struct {
	TurnID   int           `json:"turn_id"`
	Speaker  turns.Speaker `json:"speaker"`
	Kind     turns.Kind    `json:"kind"`
	Ready    bool          `json:"ready"`
	Attempts int           `json:"attempts"`
}

// slotQueue is FIFO in turn id order. It is only touched by the control loop.
type slotQueue struct {
	slots []*slot
}

func (q *slotQueue) Len() int { return len(q.slots) }

func (q *slotQueue) Head() *slot {
	if len(q.slots) == 0 {
		return nil
	}
	return q.slots[0]
}

func (q *slotQueue) Push(s *slot) {
	q.slots = append(q.slots, s)
}

func (q *slotQueue) Pop() *slot {
	if len(q.slots) == 0 {
		return nil
	}
	head := q.slots[0]
	q.slots[0] = nil
	q.slots = q.slots[1:]
	return head
}

func (q *slotQueue) Find(id int) *slot {
	for _, s := range q.slots {
		if s.id == id {
			return s
		}
	}
	return nil
}

func (q *slotQueue) Each(fn func(*slot)) {
	for _, s := range q.slots {
		fn(s)
	}
}

func (q *slotQueue) Status() []SlotStatus {
	statuses := make([]SlotStatus, 0, len(q.slots))
	for _, s := range q.slots {
		statuses = append(statuses, SlotStatus{
			TurnID:   s.id,
			Speaker:  s.speaker,
			Kind:     s.kind,
			Ready:    s.ready(),
			Attempts: s.attempts,
		})
	}
	return statuses
}
