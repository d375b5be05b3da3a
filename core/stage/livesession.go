package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-duet/core/stage/heygen"
	"github.com/koscakluka/ema-duet/core/turns"
	"go.opentelemetry.io/otel/attribute"
)

// StreamingClient drives interactive avatar sessions.
type StreamingClient interface {
	OpenSession(ctx context.Context, agent string, req heygen.SessionRequest) (heygen.StreamSession, error)
	Speak(ctx context.Context, session heygen.StreamSession, text string) error
	CloseSession(ctx context.Context, session heygen.StreamSession) error
}

// LiveSession keeps one streaming avatar session per speaker and sends each
// turn's text to the speaker's session. An optional scene switcher flips the
// broadcast between the two session views.
type LiveSession struct {
	client         StreamingClient
	agents         map[turns.Speaker]heygen.SessionRequest
	sessionsFile   string
	switcher       SceneSwitcher
	scenes         Scenes
	wordsPerSecond float64
	pad            time.Duration

	mu        sync.Mutex
	sessions  map[turns.Speaker]heygen.StreamSession
	lastScene string
}

type LiveSessionOption func(*LiveSession)

// WithSceneSwitcher makes the presenter switch scenes per speaker.
func WithSceneSwitcher(switcher SceneSwitcher, scenes Scenes) LiveSessionOption {
	return func(p *LiveSession) {
		p.switcher = switcher
		p.scenes = scenes
	}
}

func WithSessionsFile(path string) LiveSessionOption {
	return func(p *LiveSession) { p.sessionsFile = path }
}

func WithSpeakingRate(wordsPerSecond float64, pad time.Duration) LiveSessionOption {
	return func(p *LiveSession) {
		if wordsPerSecond > 0 {
			p.wordsPerSecond = wordsPerSecond
		}
		p.pad = pad
	}
}

func NewLiveSession(client StreamingClient, agents map[turns.Speaker]heygen.SessionRequest, opts ...LiveSessionOption) *LiveSession {
	p := &LiveSession{
		client:         client,
		agents:         agents,
		wordsPerSecond: DefaultWordsPerSecond,
		pad:            DefaultPlaybackPad,
		sessions:       make(map[turns.Speaker]heygen.StreamSession),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SelfCheck opens both sessions and publishes them for the viewer page.
func (p *LiveSession) SelfCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "stage self check")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, speaker := range []turns.Speaker{turns.SpeakerA, turns.SpeakerB} {
		if _, ok := p.sessions[speaker]; ok {
			continue
		}
		agent, ok := p.agents[speaker]
		if !ok {
			return fmt.Errorf("no streaming avatar configured for speaker %s", speaker)
		}
		session, err := p.client.OpenSession(ctx, string(speaker), agent)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to open session for speaker %s: %w", speaker, err)
		}
		p.sessions[speaker] = session
	}

	if p.sessionsFile != "" {
		published := make(map[string]heygen.StreamSession, len(p.sessions))
		for speaker, session := range p.sessions {
			published[string(speaker)] = session
		}
		if err := heygen.WriteSessionsFile(p.sessionsFile, published); err != nil {
			return err
		}
	}
	return nil
}

func (p *LiveSession) Present(ctx context.Context, turn *turns.Turn) (Presentation, error) {
	ctx, span := tracer.Start(ctx, "present turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("turn.id", turn.ID),
		attribute.String("turn.speaker", string(turn.Speaker)),
	)

	p.mu.Lock()
	session, ok := p.sessions[turn.Speaker]
	p.mu.Unlock()
	if !ok {
		return Presentation{}, fmt.Errorf("no open session for speaker %s", turn.Speaker)
	}

	if !turn.IsBridging() {
		if err := p.switchScene(ctx, p.scenes.For(turn.Speaker)); err != nil {
			return Presentation{}, err
		}
	}

	if err := p.client.Speak(ctx, session, turn.Text); err != nil {
		span.RecordError(err)
		return Presentation{}, err
	}

	duration := turn.AudioDuration
	if duration <= 0 {
		duration = EstimateDuration(turn.Text, p.wordsPerSecond)
	}
	return Presentation{
		TurnID:    turn.ID,
		Speaker:   turn.Speaker,
		Ref:       session.SessionID,
		Duration:  duration + p.pad,
		StartedAt: time.Now(),
	}, nil
}

// AwaitCompletion waits out the estimated speaking time; streaming sessions
// do not report when a task finished.
func (p *LiveSession) AwaitCompletion(ctx context.Context, presentation Presentation, _ time.Duration) (Completion, error) {
	if err := sleepContext(ctx, presentation.Duration-time.Since(presentation.StartedAt)); err != nil {
		return Completed, err
	}
	return Completed, nil
}

func (p *LiveSession) Idle(ctx context.Context) error {
	return p.switchScene(ctx, p.scenes.Idle)
}

func (p *LiveSession) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for speaker, session := range p.sessions {
		if err := p.client.CloseSession(ctx, session); err != nil {
			errs = append(errs, fmt.Errorf("speaker %s: %w", speaker, err))
		}
		delete(p.sessions, speaker)
	}
	return errors.Join(errs...)
}

func (p *LiveSession) switchScene(ctx context.Context, scene string) error {
	if p.switcher == nil || scene == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if scene == p.lastScene {
		return nil
	}
	if err := p.switcher.SetCurrentProgramScene(ctx, scene); err != nil {
		return fmt.Errorf("failed to switch to scene %s: %w", scene, err)
	}
	p.lastScene = scene
	return nil
}
