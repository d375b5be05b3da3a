package metrics

import (
	"strconv"

	"github.com/koscakluka/ema-duet/core/events"
)

var sessionStates = []string{"STARTING", "RUNNING", "CLOSING", "DONE"}

// Handle records the metrics carried by a session event. It has the
// signature of an orchestrator event handler.
func Handle(event events.Event) {
	switch typedEvent := event.(type) {
	case events.TurnCommitted:
		turn := typedEvent.Turn
		turnsCommittedTotal.WithLabelValues(string(turn.Speaker), string(turn.Kind)).Inc()
	case events.TurnReady:
		turn := typedEvent.Turn
		if turn.IsBridging() {
			return
		}
		if turn.LLMLatency > 0 {
			llmLatency.WithLabelValues(turn.Model).Observe(turn.LLMLatency.Seconds())
		}
		if turn.TTSLatency > 0 {
			ttsLatency.Observe(turn.TTSLatency.Seconds())
		}
	case events.GenerationFailed:
		generationFailuresTotal.WithLabelValues(string(typedEvent.Speaker), strconv.FormatBool(typedEvent.Final)).Inc()
	case events.PresentationFailed:
		presentationFailuresTotal.Inc()
	case events.StageIdle:
		idleTotal.Inc()
	case events.TopicChanged:
		topicChangesTotal.WithLabelValues(typedEvent.Source).Inc()
	case events.SummaryRefreshed:
		summaryRefreshesTotal.Inc()
	case events.SessionStateChanged:
		for _, state := range sessionStates {
			value := 0.0
			if state == typedEvent.To {
				value = 1
			}
			sessionState.WithLabelValues(state).Set(value)
		}
	}
}
