package events

// KindSessionStateChanged identifies orchestrator state transitions.
const KindSessionStateChanged Kind = "session.state_changed"

// SessionStateChanged reports a session state transition.
type SessionStateChanged struct {
	Base
	From   string
	To     string
	Reason string
}

// NewSessionStateChanged creates a session state change event.
func NewSessionStateChanged(from, to, reason string) SessionStateChanged {
	return SessionStateChanged{Base: NewBase(KindSessionStateChanged), From: from, To: to, Reason: reason}
}

// KindSummaryRefreshed identifies running summary refreshes.
const KindSummaryRefreshed Kind = "session.summary_refreshed"

type SummaryRefreshed struct {
	Base
	TurnCount int
	Length    int
}

func NewSummaryRefreshed(turnCount, length int) SummaryRefreshed {
	return SummaryRefreshed{Base: NewBase(KindSummaryRefreshed), TurnCount: turnCount, Length: length}
}
