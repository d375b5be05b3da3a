package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/koscakluka/ema-duet/core/stage/obs"
	"github.com/koscakluka/ema-duet/core/turns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MediaController is the part of the OBS client the media presenters use.
type MediaController interface {
	SceneSwitcher
	GetVersion(ctx context.Context) (obs.VersionInfo, error)
	SceneNames(ctx context.Context) ([]string, error)
	InputExists(ctx context.Context, inputName string) error
	SetMediaFile(ctx context.Context, inputName string, path string) error
	RestartMedia(ctx context.Context, inputName string) error
	MediaStatus(ctx context.Context, inputName string) (obs.MediaStatus, error)
	Subscribe() (<-chan obs.Event, func())
}

type SceneSwitcher interface {
	SetCurrentProgramScene(ctx context.Context, sceneName string) error
}

type Scenes struct {
	A    string
	B    string
	Idle string
}

func (s Scenes) For(speaker turns.Speaker) string {
	if speaker == turns.SpeakerB {
		return s.B
	}
	return s.A
}

type MediaConfig struct {
	Scenes Scenes
	// Input is the OBS media source that plays each turn.
	Input string
	// PollInterval is how often media status is polled when events are
	// missing.
	PollInterval time.Duration
	// MaxPlay caps how long a single turn may hold the stage.
	MaxPlay time.Duration
	// PlaybackPad is added to known durations before a turn counts as done.
	PlaybackPad time.Duration
}

const (
	DefaultPollInterval = 300 * time.Millisecond
	DefaultMaxPlay      = 60 * time.Second
	DefaultPlaybackPad  = 150 * time.Millisecond
)

// MediaPresenter switches OBS scenes and plays each turn's media file through
// a single media source. This is the static-image mode.
type MediaPresenter struct {
	controller MediaController
	cfg        MediaConfig

	mu        sync.Mutex
	lastScene string
	playback  *playback
}

type playback struct {
	turnID int
	events <-chan obs.Event
	cancel func()
}

func NewMediaPresenter(controller MediaController, cfg MediaConfig) *MediaPresenter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPlay <= 0 {
		cfg.MaxPlay = DefaultMaxPlay
	}
	if cfg.PlaybackPad < 0 {
		cfg.PlaybackPad = 0
	}
	return &MediaPresenter{controller: controller, cfg: cfg}
}

func (p *MediaPresenter) SelfCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "stage self check")
	defer span.End()

	version, err := p.controller.GetVersion(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to reach obs: %w", err)
	}
	span.SetAttributes(attribute.String("obs.version", version.OBSVersion))

	scenes, err := p.controller.SceneNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list obs scenes: %w", err)
	}

	var errs []error
	for _, scene := range []string{p.cfg.Scenes.A, p.cfg.Scenes.B, p.cfg.Scenes.Idle} {
		if scene != "" && !slices.Contains(scenes, scene) {
			errs = append(errs, fmt.Errorf("%w: %s (existing: %v)", ErrMissingScene, scene, scenes))
		}
	}
	if err := p.controller.InputExists(ctx, p.cfg.Input); err != nil {
		errs = append(errs, fmt.Errorf("media input %s: %w", p.cfg.Input, err))
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *MediaPresenter) Present(ctx context.Context, turn *turns.Turn) (Presentation, error) {
	ctx, span := tracer.Start(ctx, "present turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("turn.id", turn.ID),
		attribute.String("turn.speaker", string(turn.Speaker)),
		attribute.String("turn.kind", string(turn.Kind)),
	)

	ref := turn.MediaRef()
	if ref == "" {
		return Presentation{}, fmt.Errorf("%w: turn %d has no media", ErrMissingMedia, turn.ID)
	}
	if _, err := os.Stat(ref); err != nil {
		return Presentation{}, fmt.Errorf("%w: %s", ErrMissingMedia, ref)
	}

	if !turn.IsBridging() {
		if err := p.switchScene(ctx, p.cfg.Scenes.For(turn.Speaker)); err != nil {
			span.RecordError(err)
			return Presentation{}, err
		}
	}

	if err := p.controller.SetMediaFile(ctx, p.cfg.Input, ref); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Presentation{}, fmt.Errorf("failed to set media file: %w", err)
	}

	// Subscribe before restarting so the start event cannot be missed.
	p.startPlayback(turn.ID)
	if err := p.controller.RestartMedia(ctx, p.cfg.Input); err != nil {
		p.stopPlayback()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Presentation{}, fmt.Errorf("failed to restart media: %w", err)
	}

	return Presentation{
		TurnID:    turn.ID,
		Speaker:   turn.Speaker,
		Ref:       ref,
		Duration:  turn.AudioDuration,
		StartedAt: time.Now(),
	}, nil
}

func (p *MediaPresenter) AwaitCompletion(ctx context.Context, presentation Presentation, startTimeout time.Duration) (Completion, error) {
	ctx, span := tracer.Start(ctx, "await presentation")
	defer span.End()
	span.SetAttributes(attribute.Int("turn.id", presentation.TurnID))
	defer p.stopPlayback()

	events := p.eventsFor(presentation.TurnID)
	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()

	startDeadline := time.NewTimer(startTimeout)
	defer startDeadline.Stop()

	started := false
	var playTimer *time.Timer
	var playDeadline <-chan time.Time
	defer func() {
		if playTimer != nil {
			playTimer.Stop()
		}
	}()
	begin := func() {
		started = true
		limit := p.cfg.MaxPlay
		if presentation.Duration > 0 {
			limit = min(presentation.Duration+p.cfg.PlaybackPad, p.cfg.MaxPlay)
		}
		playTimer = time.NewTimer(limit)
		playDeadline = playTimer.C
		startDeadline.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return Completed, ctx.Err()

		case <-startDeadline.C:
			if !started {
				span.AddEvent("media did not start")
				return TimedOut, nil
			}

		case <-playDeadline:
			return Completed, nil

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.InputName() != p.cfg.Input {
				continue
			}
			switch event.Type {
			case obs.EventMediaInputPlaybackStarted:
				if !started {
					begin()
				}
			case obs.EventMediaInputPlaybackEnded:
				return Completed, nil
			}

		case <-poll.C:
			status, err := p.controller.MediaStatus(ctx, p.cfg.Input)
			if err != nil {
				logger.WarnContext(ctx, "failed to poll media status", "error", err)
				continue
			}
			if !started && status.State.Started() {
				begin()
			}
			if started && status.State.Finished() {
				return Completed, nil
			}
		}
	}
}

func (p *MediaPresenter) Idle(ctx context.Context) error {
	if p.cfg.Scenes.Idle == "" {
		return nil
	}
	return p.switchScene(ctx, p.cfg.Scenes.Idle)
}

func (p *MediaPresenter) switchScene(ctx context.Context, scene string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if scene == "" || scene == p.lastScene {
		return nil
	}
	if err := p.controller.SetCurrentProgramScene(ctx, scene); err != nil {
		return fmt.Errorf("failed to switch to scene %s: %w", scene, err)
	}
	p.lastScene = scene
	return nil
}

func (p *MediaPresenter) startPlayback(turnID int) {
	events, cancel := p.controller.Subscribe()

	p.mu.Lock()
	previous := p.playback
	p.playback = &playback{turnID: turnID, events: events, cancel: cancel}
	p.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}
}

func (p *MediaPresenter) stopPlayback() {
	p.mu.Lock()
	current := p.playback
	p.playback = nil
	p.mu.Unlock()

	if current != nil {
		current.cancel()
	}
}

func (p *MediaPresenter) eventsFor(turnID int) <-chan obs.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playback == nil || p.playback.turnID != turnID {
		return nil
	}
	return p.playback.events
}
