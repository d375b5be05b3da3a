// Package turns defines the unit of dialogue passed between the pipeline,
// the orchestrator and the stage.
package turns

import (
	"fmt"
	"time"
)

type Speaker string

const (
	SpeakerA Speaker = "A"
	SpeakerB Speaker = "B"
)

// SpeakerForSlot returns the speaker owning a slot. Odd slots belong to A.
func SpeakerForSlot(id int) Speaker {
	if id%2 == 1 {
		return SpeakerA
	}
	return SpeakerB
}

func (s Speaker) Other() Speaker {
	if s == SpeakerA {
		return SpeakerB
	}
	return SpeakerA
}

func (s Speaker) Valid() bool { return s == SpeakerA || s == SpeakerB }

type Kind string

const (
	KindRegular  Kind = "regular"
	KindBridging Kind = "bridging"
	KindClosing  Kind = "closing"
)

type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

var transitions = map[State][]State{
	StatePending: {StateReady, StateFailed},
	StateReady:   {StatePlaying, StateFailed},
	StatePlaying: {StateDone, StateFailed},
}

// Turn is one speaker's contribution. Once enqueued it is owned by the
// orchestrator control loop.
type Turn struct {
	ID      int
	Speaker Speaker
	Kind    Kind
	State   State

	Text string
	// AudioRef is an opaque handle to the synthesized asset, empty when the
	// stage does not need audio.
	AudioRef string
	// AssetRef is set when the stage prepared its own asset (e.g. a rendered
	// video) from the turn.
	AssetRef string
	// AudioDuration is the measured length of AudioRef, zero when unknown.
	AudioDuration time.Duration

	Model       string
	Topic       string
	TopicSource string

	CreatedAt  time.Time
	LLMLatency time.Duration
	TTSLatency time.Duration

	// Attempt counts production attempts for this slot, starting at 1.
	Attempt int
	Err     error
}

func New(id int, speaker Speaker, kind Kind) *Turn {
	return &Turn{
		ID:        id,
		Speaker:   speaker,
		Kind:      kind,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
}

// Transition moves the turn to the next state, rejecting moves the lifecycle
// does not allow.
func (t *Turn) Transition(to State) error {
	if t == nil {
		return fmt.Errorf("nil turn")
	}

	for _, allowed := range transitions[t.State] {
		if allowed == to {
			t.State = to
			return nil
		}
	}

	return fmt.Errorf("turn %d: invalid transition %s -> %s", t.ID, t.State, to)
}

// Fail marks the turn failed and records the cause.
func (t *Turn) Fail(err error) {
	if t == nil {
		return
	}
	if t.State != StateDone {
		t.State = StateFailed
	}
	t.Err = err
}

func (t *Turn) IsBridging() bool { return t != nil && t.Kind == KindBridging }

// MediaRef returns the reference the stage should play: the prepared asset
// when present, otherwise the synthesized audio.
func (t *Turn) MediaRef() string {
	if t == nil {
		return ""
	}
	if t.AssetRef != "" {
		return t.AssetRef
	}
	return t.AudioRef
}
