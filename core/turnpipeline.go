package orchestration

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-duet/core/llms"
	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"github.com/koscakluka/ema-duet/core/turns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// turnRequest is everything a production needs. It never references state
// owned by the control loop.
type turnRequest struct {
	TurnID     int
	Speaker    turns.Speaker
	Kind       turns.Kind
	Attempt    int
	Snapshot   ConversationSnapshot
	Directives []string
}

// turnPipeline turns a request into a READY turn: generate, synthesize,
// prepare, each behind the retry policy.
type turnPipeline struct {
	generator   Generator
	summarizer  Summarizer
	synthesizer Synthesizer
	preparer    stage.Preparer

	policy       retry.Policy
	maxSentences int
	needsAudio   bool
	personas     map[turns.Speaker]string
	voices       map[turns.Speaker]string

	bridgeMu    sync.Mutex
	bridgeAudio map[string]texttospeech.Speech
}

func newTurnPipeline(o *Orchestrator) *turnPipeline {
	p := &turnPipeline{
		generator:    o.generator,
		summarizer:   o.summarizer,
		synthesizer:  o.synthesizer,
		policy:       o.config.Retry,
		maxSentences: o.config.MaxSentences,
		needsAudio:   o.config.NeedsAudio,
		personas:     o.config.Personas,
		voices:       o.config.Voices,
		bridgeAudio:  make(map[string]texttospeech.Speech),
	}
	if preparer, ok := o.presenter.(stage.Preparer); ok {
		p.preparer = preparer
	}
	return p
}

// Produce returns a READY turn, or a FAILED turn together with the error
// that failed it.
func (p *turnPipeline) Produce(ctx context.Context, req turnRequest) (*turns.Turn, error) {
	ctx, span := tracer.Start(ctx, "produce turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("turn.id", req.TurnID),
		attribute.String("turn.speaker", string(req.Speaker)),
		attribute.String("turn.kind", string(req.Kind)),
		attribute.Int("turn.attempt", req.Attempt),
	)

	turn := turns.New(req.TurnID, req.Speaker, req.Kind)
	turn.Attempt = req.Attempt
	turn.Topic = req.Snapshot.Topic.Value
	turn.TopicSource = string(req.Snapshot.Topic.Source)

	generation, err := retry.Do(ctx, p.policy, "generate turn", func(ctx context.Context) (llms.Generation, error) {
		return p.generate(ctx, req)
	})
	if err != nil {
		return p.fail(span, turn, &GenerationError{TurnID: req.TurnID, Speaker: req.Speaker, Err: err})
	}
	turn.Text = generation.Text
	turn.Model = generation.Model
	turn.LLMLatency = generation.Latency

	if err := p.synthesize(ctx, turn); err != nil {
		return p.fail(span, turn, err)
	}

	if p.preparer != nil {
		assetRef, err := retry.Do(ctx, p.policy, "prepare asset", func(ctx context.Context) (string, error) {
			return p.preparer.Prepare(ctx, turn)
		})
		if err != nil {
			return p.fail(span, turn, &SynthesisError{TurnID: req.TurnID, Step: "prepare", Err: err})
		}
		turn.AssetRef = assetRef
	}

	if err := turn.Transition(turns.StateReady); err != nil {
		return p.fail(span, turn, err)
	}
	return turn, nil
}

func (p *turnPipeline) generate(ctx context.Context, req turnRequest) (llms.Generation, error) {
	generation, err := p.generator.GenerateTurn(ctx, llms.TurnRequest{
		TurnID:       req.TurnID,
		Speaker:      string(req.Speaker),
		Persona:      p.personas[req.Speaker],
		Topic:        req.Snapshot.Topic.Value,
		Summary:      req.Snapshot.Summary,
		History:      req.Snapshot.History,
		Directives:   req.Directives,
		MaxSentences: p.maxSentences,
	})
	if err != nil {
		return generation, err
	}

	generation.Text = llms.LimitSentences(strings.TrimSpace(generation.Text), p.maxSentences)
	if generation.Text == "" {
		return generation, ErrEmptyText
	}
	if repeatsRecent(generation.Text, req.Snapshot.History) {
		return generation, ErrRepeatedText
	}
	return generation, nil
}

func (p *turnPipeline) synthesize(ctx context.Context, turn *turns.Turn) error {
	if p.synthesizer == nil || !p.needsAudio {
		return nil
	}

	name := fmt.Sprintf("%04d_%s", turn.ID, turn.Speaker)
	start := time.Now()
	speech, err := retry.Do(ctx, p.policy, "synthesize speech", func(ctx context.Context) (texttospeech.Speech, error) {
		return p.synthesizer.Synthesize(ctx, name, turn.Text, texttospeech.WithVoice(p.voices[turn.Speaker]))
	})
	if err != nil {
		return &SynthesisError{TurnID: turn.ID, Step: "synthesize", Err: err}
	}

	turn.AudioRef = speech.Path
	turn.AudioDuration = speech.Duration
	turn.TTSLatency = speech.Latency
	if turn.TTSLatency == 0 {
		turn.TTSLatency = time.Since(start)
	}
	return nil
}

// Bridge builds a READY bridging turn. Audio for a line is synthesized once
// per speaker and reused. When the stage needs audio and the line cannot be
// synthesized, the turn fails and the slot keeps waiting for the next try.
func (p *turnPipeline) Bridge(ctx context.Context, id int, speaker turns.Speaker, text string) (*turns.Turn, error) {
	turn := turns.New(id, speaker, turns.KindBridging)
	turn.Text = text

	if p.synthesizer != nil && p.needsAudio {
		speech, err := p.bridgeSpeech(ctx, speaker, text)
		if err != nil {
			failure := &SynthesisError{TurnID: id, Step: "bridge", Err: err}
			turn.Fail(failure)
			return turn, failure
		}
		turn.AudioRef = speech.Path
		turn.AudioDuration = speech.Duration
	}

	turn.State = turns.StateReady
	return turn, nil
}

func (p *turnPipeline) bridgeSpeech(ctx context.Context, speaker turns.Speaker, text string) (texttospeech.Speech, error) {
	key := string(speaker) + "\x00" + text

	p.bridgeMu.Lock()
	speech, ok := p.bridgeAudio[key]
	p.bridgeMu.Unlock()
	if ok {
		return speech, nil
	}

	hash := fnv.New32a()
	_, _ = hash.Write([]byte(text))
	name := fmt.Sprintf("bridge_%s_%08x", speaker, hash.Sum32())
	policy := p.policy
	policy.MaxRetries = 0
	speech, err := retry.Do(ctx, policy, "synthesize bridging line", func(ctx context.Context) (texttospeech.Speech, error) {
		return p.synthesizer.Synthesize(ctx, name, text, texttospeech.WithVoice(p.voices[speaker]))
	})
	if err != nil {
		return texttospeech.Speech{}, err
	}

	p.bridgeMu.Lock()
	p.bridgeAudio[key] = speech
	p.bridgeMu.Unlock()
	return speech, nil
}

// Summarize regenerates the running summary from a snapshot.
func (p *turnPipeline) Summarize(ctx context.Context, snapshot ConversationSnapshot) (string, error) {
	if p.summarizer == nil {
		return "", nil
	}

	ctx, span := tracer.Start(ctx, "refresh summary")
	defer span.End()
	span.SetAttributes(attribute.Int("session.turn_count", snapshot.TurnCount))

	summary, err := retry.Do(ctx, p.policy, "summarize", func(ctx context.Context) (string, error) {
		return p.summarizer.Summarize(ctx, llms.SummaryRequest{
			Previous: snapshot.Summary,
			History:  snapshot.History,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func (p *turnPipeline) fail(span trace.Span, turn *turns.Turn, err error) (*turns.Turn, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	turn.Fail(err)
	return turn, err
}
