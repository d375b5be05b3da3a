package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-duet/core/llms"
	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"github.com/koscakluka/ema-duet/core/turns"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (g *scriptedGenerator) GenerateTurn(context.Context, llms.TurnRequest) (llms.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reply := g.replies[min(g.calls, len(g.replies)-1)]
	g.calls++
	return llms.Generation{Text: reply, Model: "scripted"}, nil
}

type synthesizerStub struct {
	err error

	mu     sync.Mutex
	names  []string
	voices []string
}

func (s *synthesizerStub) Synthesize(_ context.Context, name string, _ string, opts ...texttospeech.SynthesisOption) (texttospeech.Speech, error) {
	var options texttospeech.SynthesisOptions
	for _, opt := range opts {
		opt(&options)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.voices = append(s.voices, options.Voice)
	if s.err != nil {
		return texttospeech.Speech{}, s.err
	}
	return texttospeech.Speech{Path: "/audio/" + name + ".wav", Duration: 2 * time.Second, Latency: time.Millisecond}, nil
}

func (s *synthesizerStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

type preparingPresenter struct {
	presenterStub
	err error
}

func (p *preparingPresenter) Prepare(_ context.Context, turn *turns.Turn) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return turn.AudioRef + ".mp4", nil
}

func testPipeline(opts ...OrchestratorOption) *turnPipeline {
	cfg := testConfig(25, 3)
	cfg.Retry = retry.Policy{MaxRetries: 2}
	cfg.Voices = map[turns.Speaker]string{turns.SpeakerA: "alloy", turns.SpeakerB: "echo"}
	return NewOrchestrator(append([]OrchestratorOption{WithConfig(cfg)}, opts...)...).pipeline
}

func pipelineRequest(id int, history ...llms.HistoryEntry) turnRequest {
	return turnRequest{
		TurnID:   id,
		Speaker:  turns.SpeakerForSlot(id),
		Kind:     turns.KindRegular,
		Attempt:  1,
		Snapshot: ConversationSnapshot{History: history},
	}
}

func TestProduceTruncatesToSentenceLimit(t *testing.T) {
	p := testPipeline(WithGenerator(&scriptedGenerator{replies: []string{"One.  Two!\nThree? Four."}}))

	turn, err := p.Produce(context.Background(), pipelineRequest(1))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if turn.Text != "One. Two!" {
		t.Fatalf("expected two sentences, got %q", turn.Text)
	}
	if turn.State != turns.StateReady || turn.Model != "scripted" {
		t.Fatalf("unexpected turn %+v", turn)
	}
}

func TestProduceRetriesEmptyAndRepeatedText(t *testing.T) {
	generator := &scriptedGenerator{replies: []string{"   ", "Same  line.", "A fresh line."}}
	p := testPipeline(WithGenerator(generator))

	turn, err := p.Produce(context.Background(), pipelineRequest(2, llms.HistoryEntry{TurnID: 1, Speaker: "A", Text: "same line."}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if turn.Text != "A fresh line." || generator.calls != 3 {
		t.Fatalf("expected third reply after 3 calls, got %q after %d", turn.Text, generator.calls)
	}
}

func TestProduceFailsAfterRepeatedText(t *testing.T) {
	p := testPipeline(WithGenerator(&scriptedGenerator{replies: []string{"Same line."}}))

	turn, err := p.Produce(context.Background(), pipelineRequest(2, llms.HistoryEntry{TurnID: 1, Speaker: "A", Text: "Same line."}))
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, ErrRepeatedText) {
		t.Fatalf("expected repeated text generation error, got %v", err)
	}
	if turn.State != turns.StateFailed {
		t.Fatalf("expected failed turn, got %s", turn.State)
	}
}

func TestProduceSynthesizesAndPreparesAsset(t *testing.T) {
	synthesizer := &synthesizerStub{}
	cfg := testConfig(25, 3)
	cfg.NeedsAudio = true
	cfg.Voices = map[turns.Speaker]string{turns.SpeakerB: "echo"}
	p := NewOrchestrator(
		WithConfig(cfg),
		WithGenerator(&scriptedGenerator{replies: []string{"Hello there."}}),
		WithSynthesizer(synthesizer),
		WithPresenter(&preparingPresenter{}),
	).pipeline

	turn, err := p.Produce(context.Background(), pipelineRequest(2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if synthesizer.names[0] != "0002_B" || synthesizer.voices[0] != "echo" {
		t.Fatalf("unexpected synthesis call %v %v", synthesizer.names, synthesizer.voices)
	}
	if turn.AudioRef != "/audio/0002_B.wav" || turn.AudioDuration != 2*time.Second {
		t.Fatalf("unexpected audio on turn %+v", turn)
	}
	if turn.MediaRef() != "/audio/0002_B.wav.mp4" {
		t.Fatalf("expected prepared asset to be played, got %q", turn.MediaRef())
	}
}

func TestProduceReportsPrepareFailureAsSynthesisError(t *testing.T) {
	cfg := testConfig(25, 3)
	cfg.Retry = retry.Policy{}
	p := NewOrchestrator(
		WithConfig(cfg),
		WithGenerator(&scriptedGenerator{replies: []string{"Hello there."}}),
		WithPresenter(&preparingPresenter{err: retry.Permanent(errors.New("avatar rejected"))}),
	).pipeline

	_, err := p.Produce(context.Background(), pipelineRequest(1))

	var synthesisErr *SynthesisError
	if !errors.As(err, &synthesisErr) || synthesisErr.Step != "prepare" {
		t.Fatalf("expected prepare synthesis error, got %v", err)
	}
}

func TestBridgeReusesSynthesizedLine(t *testing.T) {
	synthesizer := &synthesizerStub{}
	cfg := testConfig(25, 3)
	cfg.NeedsAudio = true
	p := NewOrchestrator(WithConfig(cfg), WithSynthesizer(synthesizer)).pipeline

	first, _ := p.Bridge(context.Background(), 3, turns.SpeakerA, DefaultBridgeLines[0])
	second, _ := p.Bridge(context.Background(), 5, turns.SpeakerA, DefaultBridgeLines[0])
	other, err := p.Bridge(context.Background(), 4, turns.SpeakerB, DefaultBridgeLines[0])
	if err != nil {
		t.Fatalf("expected bridging turn, got %v", err)
	}

	if synthesizer.calls() != 2 {
		t.Fatalf("expected one synthesis per speaker, got %d", synthesizer.calls())
	}
	if first.AudioRef == "" || first.AudioRef != second.AudioRef || first.AudioRef == other.AudioRef {
		t.Fatalf("unexpected bridging audio %q %q %q", first.AudioRef, second.AudioRef, other.AudioRef)
	}
	if first.State != turns.StateReady || first.Kind != turns.KindBridging || second.ID != 5 {
		t.Fatalf("unexpected bridging turn %+v", second)
	}
}

func TestBridgeFailsWhenStageNeedsAudioAndSynthesisFails(t *testing.T) {
	synthesizer := &synthesizerStub{err: errors.New("tts down")}
	cfg := testConfig(25, 3)
	cfg.NeedsAudio = true
	p := NewOrchestrator(WithConfig(cfg), WithSynthesizer(synthesizer)).pipeline

	turn, err := p.Bridge(context.Background(), 3, turns.SpeakerA, "Hold on.")
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if turn.State != turns.StateFailed || turn.AudioRef != "" {
		t.Fatalf("expected a FAILED bridging turn, got %+v", turn)
	}
}

func TestBridgeWithoutAudioForTextStage(t *testing.T) {
	synthesizer := &synthesizerStub{err: errors.New("tts down")}
	p := NewOrchestrator(WithConfig(testConfig(25, 3)), WithSynthesizer(synthesizer)).pipeline

	turn, err := p.Bridge(context.Background(), 3, turns.SpeakerA, "Hold on.")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if turn.State != turns.StateReady || turn.AudioRef != "" || turn.Text != "Hold on." {
		t.Fatalf("expected a READY text-only bridging turn, got %+v", turn)
	}
	if synthesizer.calls() != 0 {
		t.Fatalf("expected no synthesis for a text stage, got %d calls", synthesizer.calls())
	}
}
