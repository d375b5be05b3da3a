package events

import "github.com/koscakluka/ema-duet/core/turns"

const (
	KindTurnReady          Kind = "turn.ready"
	KindGenerationFailed   Kind = "turn.generation_failed"
	KindBridgingInserted   Kind = "turn.bridging"
	KindTurnPresented      Kind = "turn.presented"
	KindPresentationFailed Kind = "turn.presentation_failed"
	KindTurnCommitted      Kind = "turn.committed"
)

// TurnReady carries a copy of the turn that became presentable.
type TurnReady struct {
	Base
	Turn turns.Turn
}

func NewTurnReady(turn turns.Turn) TurnReady {
	return TurnReady{Base: NewBase(KindTurnReady), Turn: turn}
}

// GenerationFailed reports a failed production attempt for a slot. Final is
// set when the slot is handed over to a bridging turn.
type GenerationFailed struct {
	Base
	TurnID  int
	Speaker turns.Speaker
	Attempt int
	Final   bool
	Err     error
}

func NewGenerationFailed(turnID int, speaker turns.Speaker, attempt int, final bool, err error) GenerationFailed {
	return GenerationFailed{
		Base:    NewBase(KindGenerationFailed),
		TurnID:  turnID,
		Speaker: speaker,
		Attempt: attempt,
		Final:   final,
		Err:     err,
	}
}

type BridgingInserted struct {
	Base
	TurnID  int
	Speaker turns.Speaker
	Text    string
}

func NewBridgingInserted(turnID int, speaker turns.Speaker, text string) BridgingInserted {
	return BridgingInserted{Base: NewBase(KindBridgingInserted), TurnID: turnID, Speaker: speaker, Text: text}
}

type TurnPresented struct {
	Base
	Turn turns.Turn
}

func NewTurnPresented(turn turns.Turn) TurnPresented {
	return TurnPresented{Base: NewBase(KindTurnPresented), Turn: turn}
}

type PresentationFailed struct {
	Base
	TurnID   int
	Speaker  turns.Speaker
	Attempts int
	Err      error
}

func NewPresentationFailed(turnID int, speaker turns.Speaker, attempts int, err error) PresentationFailed {
	return PresentationFailed{
		Base:     NewBase(KindPresentationFailed),
		TurnID:   turnID,
		Speaker:  speaker,
		Attempts: attempts,
		Err:      err,
	}
}

// TurnCommitted carries the committed turn and the summary length at commit
// time. SessionRef is set when the stage played the turn through a session
// rather than the turn's own media.
type TurnCommitted struct {
	Base
	Turn       turns.Turn
	SessionRef string
	SummaryLen int
}

func NewTurnCommitted(turn turns.Turn, sessionRef string, summaryLen int) TurnCommitted {
	return TurnCommitted{Base: NewBase(KindTurnCommitted), Turn: turn, SessionRef: sessionRef, SummaryLen: summaryLen}
}
