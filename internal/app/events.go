package app

import (
	"github.com/koscakluka/ema-duet/core/events"
)

// logEvent is the operator's running log of the broadcast.
func (a *App) logEvent(event events.Event) {
	switch e := event.(type) {
	case events.TurnCommitted:
		a.logger.Info("turn aired",
			"turn_id", e.Turn.ID,
			"speaker", string(e.Turn.Speaker),
			"kind", string(e.Turn.Kind),
			"text", e.Turn.Text,
		)
	case events.BridgingInserted:
		a.logger.Info("bridging turn inserted", "turn_id", e.TurnID, "speaker", string(e.Speaker))
	case events.SummaryRefreshed:
		a.logger.Debug("summary refreshed", "turn_count", e.TurnCount, "length", e.Length)
	default:
		a.logger.Debug("session event", "kind", string(event.Kind()))
	}
}
