package events

// KindStageIdle identifies the stage entering its idle scene.
const KindStageIdle Kind = "stage.idle"

type StageIdle struct {
	Base
	// HeadTurnID is the slot the session is waiting on, 0 when the queue is
	// empty.
	HeadTurnID int
	Reason     string
}

func NewStageIdle(headTurnID int, reason string) StageIdle {
	return StageIdle{Base: NewBase(KindStageIdle), HeadTurnID: headTurnID, Reason: reason}
}
