package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-duet/core/events"
	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/koscakluka/ema-duet/core/turns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

type SessionState string

const (
	StateStarting SessionState = "STARTING"
	StateRunning  SessionState = "RUNNING"
	StateClosing  SessionState = "CLOSING"
	StateDone     SessionState = "DONE"
)

// closingTurnsPerSession is one closing turn for each speaker.
const closingTurnsPerSession = 2

// SessionSnapshot is a point-in-time view of the session, safe to read from
// any goroutine.
type SessionSnapshot struct {
	SessionID   string       `json:"session_id"`
	State       SessionState `json:"state"`
	TurnCount   int          `json:"turn_count"`
	MaxTurns    int          `json:"max_turns"`
	QueueDepth  int          `json:"queue_depth"`
	Queue       []SlotStatus `json:"queue"`
	Topic       string       `json:"topic"`
	TopicSource string       `json:"topic_source"`
	SummaryLen  int          `json:"summary_len"`
	Idle        bool         `json:"idle"`
	// LastCommitted is the id of the last committed turn, 0 before the first.
	LastCommitted int       `json:"last_committed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type productionResult struct {
	slotID int
	seq    int
	turn   *turns.Turn
	err    error
}

type summaryResult struct {
	turnCount int
	summary   string
	err       error
}

// Orchestrator runs one broadcast session: it keeps the queue filled ahead of
// playback, presents turns in order and commits them to the conversation.
type Orchestrator struct {
	config    Config
	sessionID string

	generator     Generator
	summarizer    Summarizer
	synthesizer   Synthesizer
	presenter     stage.Presenter
	topics        TopicProvider
	transcript    TranscriptSink
	eventHandlers []EventHandler
	pipeline      *turnPipeline
	now           func() time.Time

	// Fields below are owned by the control loop.
	state           SessionState
	conversation    *conversationState
	queue           slotQueue
	nextSlotID      int
	closingSlots    int
	idle            bool
	waitingSince    time.Time
	summaryInflight bool
	bridgeIndex     int

	sem       *semaphore.Weighted
	tasks     sync.WaitGroup
	results   chan productionResult
	summaries chan summaryResult
	loopDone  chan struct{}

	// genCtx parents every production and is cancelled by Stop. stageCtx is
	// used for the stage and the transcript and is never cancelled.
	genCtx   context.Context
	stageCtx context.Context

	started  atomic.Bool
	stopCtx  context.Context
	stopFunc context.CancelFunc

	snapshotMu sync.RWMutex
	snapshot   SessionSnapshot
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	stopCtx, stopFunc := context.WithCancel(context.Background())
	o := &Orchestrator{
		config:   DefaultConfig(),
		now:      time.Now,
		state:    StateStarting,
		stopCtx:  stopCtx,
		stopFunc: stopFunc,
		loopDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.config = o.config.withDefaults()
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.presenter == nil {
		o.presenter = stage.NewTextOnly()
	}
	if o.topics == nil {
		o.topics = topic.NewProvider()
	}

	o.conversation = newConversationState(o.config.HistoryWindow)
	o.nextSlotID = 1
	o.sem = semaphore.NewWeighted(int64(o.config.GenerationConcurrency))
	o.results = make(chan productionResult, o.config.QueueFloor+closingTurnsPerSession)
	o.summaries = make(chan summaryResult, 1)
	o.pipeline = newTurnPipeline(o)
	o.publish()
	return o
}

func (o *Orchestrator) SessionID() string { return o.sessionID }

// Run drives the session until it is DONE, stopped or ctx is cancelled.
// Cancelling ctx behaves like Stop: the turn on stage finishes first.
//
// Contract: call Run at most once per orchestrator instance.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if o.generator == nil {
		return &ConfigurationError{Problems: []string{"a turn generator is required"}}
	}

	ctx, span := tracer.Start(ctx, "run session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", o.sessionID))

	stopOnCancel := withContextCancelHook(ctx, o.Stop)
	defer close(stopOnCancel)

	if o.config.SessionTimeout > 0 {
		timer := time.AfterFunc(o.config.SessionTimeout, func() {
			logger.Info("session timeout reached, stopping", "session_id", o.sessionID)
			o.Stop()
		})
		defer timer.Stop()
	}

	// Productions die with Stop; the stage keeps a context that outlives
	// ctx so the turn on air can finish.
	genCtx, cancelGeneration := context.WithCancel(ctx)
	stopGeneration := context.AfterFunc(o.stopCtx, cancelGeneration)
	stageCtx := context.WithoutCancel(ctx)

	defer func() {
		stopGeneration()
		cancelGeneration()
		close(o.loopDone)
		o.tasks.Wait()
		o.closePresenter(stageCtx)
	}()

	_, err := retry.Do(stageCtx, o.stagePolicy(), "stage self-check", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.presenter.SelfCheck(ctx)
	})
	if err != nil {
		unavailable := &StageUnavailableError{Err: err}
		if o.config.StrictValidation {
			span.RecordError(unavailable)
			span.SetStatus(codes.Error, unavailable.Error())
			o.setState(stageCtx, StateDone, "stage unavailable")
			return unavailable
		}
		logger.WarnContext(ctx, "stage self-check failed, continuing", "error", err)
	}

	o.genCtx, o.stageCtx = genCtx, stageCtx
	o.setState(stageCtx, StateRunning, "")
	o.loop()

	reason := "completed"
	if o.stopped() {
		reason = "stopped"
	}
	o.setState(stageCtx, StateDone, reason)
	return nil
}

// Stop cancels in-flight productions. A turn on stage finishes before the
// session reaches DONE; no closing turns are played.
func (o *Orchestrator) Stop() {
	o.stopFunc()
}

func (o *Orchestrator) stopped() bool {
	return o.stopCtx.Err() != nil
}

// Snapshot returns the latest published view of the session.
func (o *Orchestrator) Snapshot() SessionSnapshot {
	o.snapshotMu.RLock()
	defer o.snapshotMu.RUnlock()

	snapshot := o.snapshot
	snapshot.Queue = append([]SlotStatus(nil), o.snapshot.Queue...)
	return snapshot
}

// publish refreshes the snapshot from loop-owned state. Only the control
// loop and the constructor call it.
func (o *Orchestrator) publish() {
	conversation := o.conversation
	snapshot := SessionSnapshot{
		SessionID:     o.sessionID,
		State:         o.state,
		TurnCount:     conversation.turnCount,
		MaxTurns:      o.config.MaxTurns,
		QueueDepth:    o.queue.Len(),
		Queue:         o.queue.Status(),
		Topic:         conversation.topic.Value,
		TopicSource:   string(conversation.topic.Source),
		SummaryLen:    len(conversation.summary),
		Idle:          o.idle,
		LastCommitted: conversation.lastCommitted,
		UpdatedAt:     o.now(),
	}

	o.snapshotMu.Lock()
	o.snapshot = snapshot
	o.snapshotMu.Unlock()
}

func (o *Orchestrator) setState(ctx context.Context, to SessionState, reason string) {
	if o.state == to {
		return
	}
	from := o.state
	o.state = to
	logger.InfoContext(ctx, "session state changed", "from", from, "to", to, "reason", reason)
	o.emit(ctx, events.NewSessionStateChanged(string(from), string(to), reason))
}

func (o *Orchestrator) closePresenter(ctx context.Context) {
	closer, ok := o.presenter.(stage.Closer)
	if !ok {
		return
	}
	if err := closer.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WarnContext(ctx, "failed to close stage", "error", err)
	}
}
