package orchestration

import (
	"context"

	"github.com/koscakluka/ema-duet/core/events"
	"github.com/koscakluka/ema-duet/core/transcript"
)

// emit publishes the snapshot, hands the event to every handler and writes
// its transcript record. Transcript failures never stop the session.
func (o *Orchestrator) emit(ctx context.Context, event events.Event) {
	o.publish()

	for _, handler := range o.eventHandlers {
		handler(event)
	}

	if o.transcript == nil {
		return
	}
	record, ok := o.transcriptRecord(event)
	if !ok {
		return
	}
	if err := o.transcript.Write(ctx, record); err != nil {
		logger.WarnContext(ctx, "failed to write transcript record", "type", record.Type, "error", err)
	}
}

func (o *Orchestrator) transcriptRecord(event events.Event) (transcript.Record, bool) {
	now := event.Timestamp()
	switch e := event.(type) {
	case events.TurnCommitted:
		turn := e.Turn
		return transcript.Record{
			Timestamp:   now.UTC(),
			Type:        transcript.TypeTurn,
			SessionID:   o.sessionID,
			Speaker:     string(turn.Speaker),
			TurnID:      turn.ID,
			Kind:        string(turn.Kind),
			Text:        turn.Text,
			AudioRef:    turn.MediaRef(),
			SessionRef:  e.SessionRef,
			LLMLatency:  transcript.Seconds(turn.LLMLatency),
			TTSLatency:  transcript.Seconds(turn.TTSLatency),
			Model:       turn.Model,
			Topic:       turn.Topic,
			TopicSource: turn.TopicSource,
			SummaryLen:  e.SummaryLen,
		}, true

	case events.TopicChanged:
		record := transcript.Event(o.sessionID, transcript.TypeTopicChanged, now, map[string]any{
			"previous": e.Previous,
		})
		record.Topic, record.TopicSource = e.Value, e.Source
		return record, true

	case events.StageIdle:
		return transcript.Event(o.sessionID, transcript.TypeIdle, now, map[string]any{
			"head_turn_id": e.HeadTurnID,
			"reason":       e.Reason,
		}), true

	case events.PresentationFailed:
		record := transcript.Event(o.sessionID, transcript.TypePresentationFailed, now, map[string]any{
			"attempts": e.Attempts,
			"error":    errorString(e.Err),
		})
		record.TurnID, record.Speaker = e.TurnID, string(e.Speaker)
		return record, true

	case events.GenerationFailed:
		record := transcript.Event(o.sessionID, transcript.TypeGenerationFailed, now, map[string]any{
			"attempt": e.Attempt,
			"final":   e.Final,
			"error":   errorString(e.Err),
		})
		record.TurnID, record.Speaker = e.TurnID, string(e.Speaker)
		return record, true

	case events.BridgingInserted:
		record := transcript.Event(o.sessionID, transcript.TypeBridging, now, nil)
		record.TurnID, record.Speaker, record.Text = e.TurnID, string(e.Speaker), e.Text
		return record, true

	case events.SessionStateChanged:
		return transcript.Event(o.sessionID, transcript.TypeSessionState, now, map[string]any{
			"from":   e.From,
			"to":     e.To,
			"reason": e.Reason,
		}), true
	}
	return transcript.Record{}, false
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
