package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-duet/core/events"
	"github.com/koscakluka/ema-duet/core/llms"
	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/koscakluka/ema-duet/core/transcript"
	"github.com/koscakluka/ema-duet/core/turns"
)

type OrchestratorOption func(*Orchestrator)

// Generator writes the next line of dialogue.
type Generator interface {
	GenerateTurn(ctx context.Context, req llms.TurnRequest) (llms.Generation, error)
}

// Summarizer compresses the history into the running summary.
type Summarizer interface {
	Summarize(ctx context.Context, req llms.SummaryRequest) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, name string, text string, opts ...texttospeech.SynthesisOption) (texttospeech.Speech, error)
}

type TopicProvider interface {
	Current(now time.Time) topic.State
}

type TranscriptSink interface {
	Write(ctx context.Context, record transcript.Record) error
}

// EventHandler receives every session event on the control loop. Handlers
// must not block.
type EventHandler func(events.Event)

var DefaultBridgeLines = []string{
	"Let me pause on that for a second.",
	"That is worth sitting with for a moment.",
	"Give me a moment to pick that thread back up.",
	"Hold that thought, I want to come back to it.",
}

// Config holds the session rules. Zero values are replaced by defaults in
// NewOrchestrator.
type Config struct {
	QueueFloor   int
	MaxTurns     int
	FinalRounds  int
	MaxSentences int
	// HistoryWindow is how many committed turns the generator sees.
	HistoryWindow int
	SummaryEvery  int
	// SlotAttempts is how many productions a slot gets before it is replaced
	// by a bridging turn.
	SlotAttempts        int
	PresentationRetries int
	// GenerationConcurrency bounds parallel productions, defaults to
	// QueueFloor.
	GenerationConcurrency int

	IdleRetryInterval time.Duration
	MediaStartTimeout time.Duration
	// SessionTimeout stops the session after the given time, zero disables it.
	SessionTimeout time.Duration

	StrictValidation bool
	// CancelInflightOnTopicChange restarts productions that were dispatched
	// with the previous topic.
	CancelInflightOnTopicChange bool
	// NeedsAudio makes the pipeline synthesize audio for every turn.
	NeedsAudio bool

	BridgeLines []string
	Personas    map[turns.Speaker]string
	Voices      map[turns.Speaker]string

	Retry retry.Policy
}

func DefaultConfig() Config {
	return Config{
		QueueFloor:          2,
		MaxTurns:            25,
		FinalRounds:         3,
		MaxSentences:        2,
		HistoryWindow:       12,
		SummaryEvery:        6,
		SlotAttempts:        3,
		PresentationRetries: 1,
		IdleRetryInterval:   time.Second,
		MediaStartTimeout:   5 * time.Second,
		StrictValidation:    true,
		NeedsAudio:          true,
		BridgeLines:         DefaultBridgeLines,
		Retry:               retry.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.QueueFloor <= 0 {
		c.QueueFloor = defaults.QueueFloor
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = defaults.MaxTurns
	}
	if c.FinalRounds < 0 || c.FinalRounds >= c.MaxTurns {
		c.FinalRounds = 0
	}
	if c.MaxSentences <= 0 {
		c.MaxSentences = defaults.MaxSentences
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = defaults.HistoryWindow
	}
	if c.SummaryEvery <= 0 {
		c.SummaryEvery = defaults.SummaryEvery
	}
	if c.SlotAttempts <= 0 {
		c.SlotAttempts = defaults.SlotAttempts
	}
	if c.PresentationRetries < 0 {
		c.PresentationRetries = 0
	}
	if c.GenerationConcurrency <= 0 {
		c.GenerationConcurrency = c.QueueFloor
	}
	if c.IdleRetryInterval <= 0 {
		c.IdleRetryInterval = defaults.IdleRetryInterval
	}
	if c.MediaStartTimeout <= 0 {
		c.MediaStartTimeout = defaults.MediaStartTimeout
	}
	if len(c.BridgeLines) == 0 {
		c.BridgeLines = defaults.BridgeLines
	}
	return c
}

// closingAt is the committed turn count that starts the closing sequence.
func (c Config) closingAt() int { return c.MaxTurns - c.FinalRounds }

func WithConfig(cfg Config) OrchestratorOption {
	return func(o *Orchestrator) { o.config = cfg }
}

func WithGenerator(generator Generator) OrchestratorOption {
	return func(o *Orchestrator) { o.generator = generator }
}

func WithSummarizer(summarizer Summarizer) OrchestratorOption {
	return func(o *Orchestrator) { o.summarizer = summarizer }
}

// WithSynthesizer enables speech synthesis. Without it turns carry text only.
func WithSynthesizer(synthesizer Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

func WithPresenter(presenter stage.Presenter) OrchestratorOption {
	return func(o *Orchestrator) { o.presenter = presenter }
}

func WithTopicProvider(provider TopicProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.topics = provider }
}

func WithTranscriptSink(sink TranscriptSink) OrchestratorOption {
	return func(o *Orchestrator) { o.transcript = sink }
}

// WithEventHandler adds a handler; handlers run in registration order.
func WithEventHandler(handler EventHandler) OrchestratorOption {
	return func(o *Orchestrator) {
		if handler != nil {
			o.eventHandlers = append(o.eventHandlers, handler)
		}
	}
}

func WithSessionID(id string) OrchestratorOption {
	return func(o *Orchestrator) { o.sessionID = id }
}
