// Package app assembles a duet session from the loaded configuration and runs
// it together with its supporting services.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	orchestration "github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/metrics"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/koscakluka/ema-duet/core/topic/youtube"
	"github.com/koscakluka/ema-duet/core/transcript"
	"github.com/koscakluka/ema-duet/internal/config"
	"github.com/koscakluka/ema-duet/internal/control"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const queueDepthInterval = time.Second

// App owns one session and everything wired around it.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mode         stage.Mode
	registry     *prometheus.Registry
	topics       *topic.Provider
	poller       *youtube.Poller
	presenter    stage.Presenter
	transcript   transcript.Sink
	orchestrator *orchestration.Orchestrator
	control      *control.Server
	viewer       *control.Viewer

	closers []io.Closer
}

type Option func(*App)

// WithRegistry replaces the metrics registry, mostly for tests.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(a *App) { a.registry = registry }
}

// WithPresenter skips building the stage from configuration.
func WithPresenter(presenter stage.Presenter) Option {
	return func(a *App) { a.presenter = presenter }
}

// New validates cfg and connects every backend it names. Close releases
// them, also when Run is never called.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := stage.ParseMode(cfg.Stage.Mode)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, mode: mode}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = metrics.NewRegistry()
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	model, err := newLanguageModel(a.cfg.LLM)
	if err != nil {
		return err
	}

	synthesizer, err := newSynthesizer(a.cfg.TTS)
	if err != nil {
		return err
	}

	if a.presenter == nil {
		a.presenter, err = a.newPresenter(ctx)
		if err != nil {
			return err
		}
	}

	a.transcript, err = newTranscriptSink(a.cfg.Transcript)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.transcript)

	a.topics = newTopicProvider(a.cfg.Topic)
	if a.cfg.YouTube.Enabled {
		a.poller = newChatPoller(a.cfg, a.topics, a.logger)
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithConfig(sessionConfig(a.cfg, a.mode, synthesizer != nil)),
		orchestration.WithGenerator(model),
		orchestration.WithSummarizer(model),
		orchestration.WithPresenter(a.presenter),
		orchestration.WithTopicProvider(a.topics),
		orchestration.WithTranscriptSink(a.transcript),
		orchestration.WithEventHandler(metrics.Handle),
		orchestration.WithEventHandler(a.logEvent),
	}
	if synthesizer != nil {
		opts = append(opts, orchestration.WithSynthesizer(synthesizer))
	}
	a.orchestrator = orchestration.NewOrchestrator(opts...)

	if a.cfg.Control.Listen != "" {
		a.control = control.NewServer(a.orchestrator, a.topics,
			control.WithToken(a.cfg.Control.Token),
			control.WithGatherer(a.registry),
		)
	}

	if a.mode == stage.ModeLiveSession && a.cfg.Stage.HeyGen.ViewerListen != "" {
		a.viewer = control.NewViewer(a.cfg.Stage.HeyGen.SessionsFile, a.cfg.Stage.HeyGen.WebRoot)
	}
	return nil
}

// Orchestrator exposes the session, e.g. for Stop on a signal.
func (a *App) Orchestrator() *orchestration.Orchestrator { return a.orchestrator }

// Run plays the session to the end. Supporting services are started with it
// and stopped once the session is DONE; their failures are logged and never
// end the broadcast.
func (a *App) Run(ctx context.Context) error {
	servicesCtx, stopServices := context.WithCancel(ctx)
	defer stopServices()

	group, groupCtx := errgroup.WithContext(servicesCtx)
	group.Go(func() error {
		defer stopServices()
		return a.orchestrator.Run(ctx)
	})

	a.background(groupCtx, group, "topic watcher", a.topics.Watch)
	if a.poller != nil {
		a.background(groupCtx, group, "chat poller", a.poller.Run)
	}
	if a.control != nil {
		a.background(groupCtx, group, "control server", func(ctx context.Context) error {
			return a.control.Run(ctx, a.cfg.Control.Listen)
		})
	}
	if a.viewer != nil {
		a.background(groupCtx, group, "viewer server", func(ctx context.Context) error {
			return a.viewer.Run(ctx, a.cfg.Stage.HeyGen.ViewerListen)
		})
	}
	a.background(groupCtx, group, "queue depth", a.reportQueueDepth)

	a.logger.InfoContext(ctx, "session starting",
		"session_id", a.orchestrator.SessionID(),
		"stage", string(a.mode),
		"max_turns", a.cfg.Session.MaxTurns,
	)
	if err := group.Wait(); err != nil {
		return fmt.Errorf("session %s failed: %w", a.orchestrator.SessionID(), err)
	}

	snapshot := a.orchestrator.Snapshot()
	a.logger.InfoContext(ctx, "session finished",
		"session_id", snapshot.SessionID,
		"turns", snapshot.TurnCount,
	)
	return nil
}

// SelfCheck verifies the stage without starting a session. Remote stage
// resources opened by the check are released before it returns.
func (a *App) SelfCheck(ctx context.Context) error {
	if closer, ok := a.presenter.(stage.Closer); ok {
		defer func() {
			if err := closer.Close(context.WithoutCancel(ctx)); err != nil {
				a.logger.WarnContext(ctx, "failed to close stage", "error", err)
			}
		}()
	}

	if err := a.presenter.SelfCheck(ctx); err != nil {
		return &orchestration.StageUnavailableError{Err: err}
	}
	a.logger.InfoContext(ctx, "stage ready", "stage", string(a.mode))
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) background(ctx context.Context, group *errgroup.Group, name string, run func(context.Context) error) {
	group.Go(func() error {
		if err := run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "background service stopped", "service", name, "error", err)
		}
		return nil
	})
}

func (a *App) reportQueueDepth(ctx context.Context) error {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			metrics.SetQueueDepth(a.orchestrator.Snapshot().QueueDepth)
		}
	}
}
