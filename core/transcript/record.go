// Package transcript persists one structured record per committed turn and
// per session event.
package transcript

import (
	"context"
	"errors"
	"time"
)

type RecordType string

const (
	TypeTurn               RecordType = "turn"
	TypeTopicChanged       RecordType = "topic_changed"
	TypeIdle               RecordType = "idle"
	TypePresentationFailed RecordType = "presentation_failed"
	TypeGenerationFailed   RecordType = "generation_failed"
	TypeBridging           RecordType = "bridging"
	TypeSessionState       RecordType = "session_state"
)

var ErrClosed = errors.New("transcript sink closed")

// Record is a single JSON line. Turn records fill the turn fields, event
// records carry their payload in Detail.
type Record struct {
	Timestamp time.Time  `json:"timestamp"`
	Type      RecordType `json:"type"`
	SessionID string     `json:"session_id"`

	Speaker    string  `json:"speaker,omitempty"`
	TurnID     int     `json:"turn_id,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Text       string  `json:"text,omitempty"`
	AudioRef   string  `json:"audio_ref,omitempty"`
	SessionRef string  `json:"session_ref,omitempty"`
	LLMLatency float64 `json:"llm_latency,omitempty"`
	TTSLatency float64 `json:"tts_latency,omitempty"`
	Model      string  `json:"model,omitempty"`
	Topic      string  `json:"topic,omitempty"`
	// TopicSource is one of env, file, chat or default.
	TopicSource string `json:"topic_source,omitempty"`
	SummaryLen  int    `json:"summary_len,omitempty"`

	Detail map[string]any `json:"detail,omitempty"`
}

// Event builds an event record.
func Event(sessionID string, typ RecordType, now time.Time, detail map[string]any) Record {
	return Record{
		Timestamp: now.UTC(),
		Type:      typ,
		SessionID: sessionID,
		Detail:    detail,
	}
}

// Seconds converts a latency to the float seconds written to the transcript.
func Seconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}

// Sink is an append-only consumer of transcript records.
type Sink interface {
	Write(ctx context.Context, record Record) error
	Close() error
}

type nopSink struct{}

// Nop returns a sink that discards everything.
func Nop() Sink { return nopSink{} }

func (nopSink) Write(context.Context, Record) error { return nil }
func (nopSink) Close() error                        { return nil }

type multiSink []Sink

// Multi fans every record out to all sinks. A failing sink does not stop the
// others from receiving the record.
func Multi(sinks ...Sink) Sink {
	var filtered multiSink
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	if len(filtered) == 0 {
		return Nop()
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return filtered
}

func (m multiSink) Write(ctx context.Context, record Record) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiSink) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
