package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-duet/core/events"
	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/turns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var bridgingTurns, _ = meter.Int64Counter("orchestration.bridging_turns",
	metric.WithDescription("Slots replaced by a bridging turn"))

// loop is the control loop. Every field it touches is owned by it;
// productions report back through the results channels.
func (o *Orchestrator) loop() {
	for !o.stopped() {
		o.refreshTopic()
		o.drainResults()
		o.ensureFloor()
		o.publish()

		head := o.queue.Head()
		if head == nil {
			if o.state == StateRunning {
				// Regular slot ids ran out before turn_count reached the
				// closing threshold, e.g. after dropped presentations.
				o.setState(o.stageCtx, StateClosing, "turn budget exhausted")
				continue
			}
			return
		}

		if !head.ready() {
			o.hold(head)
			continue
		}

		o.waitingSince = time.Time{}
		o.presentHead()
	}
}

// refreshTopic polls the topic provider and records changes. In-flight
// productions keep their topic unless CancelInflightOnTopicChange is set.
func (o *Orchestrator) refreshTopic() {
	now := o.now()
	current := o.topics.Current(now)
	previous := o.conversation.topic.Value
	if !o.conversation.setTopic(current, now) {
		return
	}

	logger.InfoContext(o.stageCtx, "topic changed", "topic", current.Value, "source", current.Source)
	o.emit(o.stageCtx, events.NewTopicChanged(previous, current.Value, string(current.Source)))

	if !o.config.CancelInflightOnTopicChange || previous == "" {
		return
	}
	o.queue.Each(func(s *slot) {
		if s.inflight && !s.bridging && s.topic != current.Value {
			s.stop()
			s.inflight = false
			// A restart for a new topic is not a failed attempt.
			s.attempts--
		}
	})
}

func (o *Orchestrator) drainResults() {
	for {
		select {
		case result := <-o.results:
			o.applyResult(result)
		case result := <-o.summaries:
			o.applySummary(result)
		default:
			return
		}
	}
}

// ensureFloor re-dispatches failed slots and appends new ones until the
// queue holds QueueFloor slots or no further slot may be requested.
func (o *Orchestrator) ensureFloor() {
	if o.stopped() {
		return
	}
	now := o.now()
	o.queue.Each(func(s *slot) {
		if s.needsDispatch() && !now.Before(s.retryAt) {
			o.dispatch(s)
		}
	})

	for o.queue.Len() < o.config.QueueFloor {
		s := o.nextSlot()
		if s == nil {
			return
		}
		o.queue.Push(s)
		o.dispatch(s)
	}
}

// nextSlot allocates the next slot id. Regular slots never go past MaxTurns;
// once closing, only the closing turns are requested.
func (o *Orchestrator) nextSlot() *slot {
	if o.stopped() {
		return nil
	}

	var kind turns.Kind
	switch o.state {
	case StateRunning:
		if o.nextSlotID > o.config.MaxTurns {
			return nil
		}
		kind = turns.KindRegular
	case StateClosing:
		if o.closingSlots >= closingTurnsPerSession {
			return nil
		}
		o.closingSlots++
		kind = turns.KindClosing
	default:
		return nil
	}

	s := newSlot(o.nextSlotID, kind)
	o.nextSlotID++
	return s
}

func (o *Orchestrator) dispatch(s *slot) {
	if s.bridging {
		o.dispatchBridge(s, o.nextBridgeLine())
		return
	}

	s.attempts++
	s.seq++
	s.inflight = true

	snapshot := o.conversation.Snapshot()
	s.topic = snapshot.Topic.Value
	req := turnRequest{
		TurnID:     s.id,
		Speaker:    s.speaker,
		Kind:       s.kind,
		Attempt:    s.attempts,
		Snapshot:   snapshot,
		Directives: directivesFor(o.config, s.id, s.kind),
	}

	o.spawn(s, func(ctx context.Context) (*turns.Turn, error) {
		return o.pipeline.Produce(ctx, req)
	})
}

func (o *Orchestrator) dispatchBridge(s *slot, text string) {
	s.seq++
	s.inflight = true

	id, speaker := s.id, s.speaker
	o.spawn(s, func(ctx context.Context) (*turns.Turn, error) {
		return o.pipeline.Bridge(ctx, id, speaker, text)
	})
}

// spawn runs a production on the bounded pool and reports its result to the
// control loop.
func (o *Orchestrator) spawn(s *slot, produce func(context.Context) (*turns.Turn, error)) {
	ctx, cancel := context.WithCancel(o.genCtx)
	s.cancel = cancel
	slotID, seq := s.id, s.seq

	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		defer cancel()

		var turn *turns.Turn
		worker := panicSafeNamedWorker(fmt.Sprintf("turn %d production", slotID), func(ctx context.Context) error {
			if err := o.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer o.sem.Release(1)

			var err error
			turn, err = produce(ctx)
			return err
		})
		err := worker(ctx)

		select {
		case o.results <- productionResult{slotID: slotID, seq: seq, turn: turn, err: err}:
		case <-o.loopDone:
		}
	}()
}

func (o *Orchestrator) applyResult(result productionResult) {
	s := o.queue.Find(result.slotID)
	if s == nil || s.seq != result.seq {
		return
	}
	s.inflight = false
	s.cancel = nil

	if result.err == nil && result.turn.State == turns.StateReady {
		s.turn = result.turn
		o.emit(o.stageCtx, events.NewTurnReady(*result.turn))
		return
	}
	if o.stopped() {
		return
	}

	err := result.err
	if err == nil {
		err = fmt.Errorf("turn %d production ended in state %s", s.id, result.turn.State)
	}
	if s.bridging {
		s.retryAt = o.now().Add(o.config.IdleRetryInterval)
		logger.WarnContext(o.stageCtx, "bridging turn failed, retrying",
			"turn_id", s.id, "retry_in", o.config.IdleRetryInterval, "error", err)
		return
	}

	final := s.attempts >= o.config.SlotAttempts
	logger.WarnContext(o.stageCtx, "turn production failed",
		"turn_id", s.id, "speaker", s.speaker, "attempt", s.attempts, "final", final, "error", err)
	o.emit(o.stageCtx, events.NewGenerationFailed(s.id, s.speaker, s.attempts, final, err))

	if final {
		o.bridge(s)
	}
}

// bridge replaces a slot that used up its attempts with a neutral filler
// line for the same speaker.
func (o *Orchestrator) bridge(s *slot) {
	text := o.nextBridgeLine()
	s.bridging = true
	s.kind = turns.KindBridging

	bridgingTurns.Add(o.stageCtx, 1)
	o.emit(o.stageCtx, events.NewBridgingInserted(s.id, s.speaker, text))
	o.dispatchBridge(s, text)
}

func (o *Orchestrator) nextBridgeLine() string {
	line := o.config.BridgeLines[o.bridgeIndex%len(o.config.BridgeLines)]
	o.bridgeIndex++
	return line
}

// hold waits for the head to become presentable. After one full retry
// interval without progress the stage is parked on its idle presentation.
func (o *Orchestrator) hold(head *slot) {
	now := o.now()
	switch {
	case o.waitingSince.IsZero():
		o.waitingSince = now
	case !o.idle && now.Sub(o.waitingSince) >= o.config.IdleRetryInterval:
		o.enterIdle(head)
	}

	timer := time.NewTimer(o.config.IdleRetryInterval)
	defer timer.Stop()

	select {
	case result := <-o.results:
		o.applyResult(result)
	case result := <-o.summaries:
		o.applySummary(result)
	case <-timer.C:
	case <-o.stopCtx.Done():
	}
}

func (o *Orchestrator) enterIdle(head *slot) {
	o.idle = true

	headID, reason := 0, "queue empty"
	if head != nil {
		headID, reason = head.id, "turn pending"
	}

	logger.InfoContext(o.stageCtx, "stage idle", "head_turn_id", headID, "reason", reason)
	if err := o.idleStage(o.stageCtx); err != nil {
		logger.WarnContext(o.stageCtx, "failed to idle stage", "error", err)
	}
	o.emit(o.stageCtx, events.NewStageIdle(headID, reason))
}

func (o *Orchestrator) idleStage(ctx context.Context) error {
	_, err := retry.Do(ctx, o.stagePolicy(), "idle stage", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.presenter.Idle(ctx)
	})
	return err
}

// stagePolicy is the session retry policy sized for stage calls. Stage
// calls get PresentationRetries retries and no attempt timeout, since a
// presentation lasts as long as its media. Nothing is retried after Stop.
func (o *Orchestrator) stagePolicy() retry.Policy {
	policy := o.config.Retry
	policy.MaxRetries = o.config.PresentationRetries
	policy.AttemptTimeout = 0

	classify := policy.Classify
	if classify == nil {
		classify = retry.IsRetryable
	}
	policy.Classify = func(err error) bool {
		return !o.stopped() && classify(err)
	}
	return policy
}

// presentHead pops the head, dispatches its replacement so production
// overlaps playback, then plays and commits the turn. A turn that cannot be
// played is dropped, never re-queued.
func (o *Orchestrator) presentHead() {
	s := o.queue.Pop()
	o.ensureFloor()
	o.idle = false
	o.publish()

	turn := s.turn
	ctx, span := tracer.Start(o.stageCtx, "present turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("turn.id", turn.ID),
		attribute.String("turn.speaker", string(turn.Speaker)),
		attribute.String("turn.kind", string(turn.Kind)),
	)

	if err := turn.Transition(turns.StatePlaying); err != nil {
		logger.ErrorContext(ctx, "failed to start turn", "turn_id", turn.ID, "error", err)
		return
	}

	attempts := 0
	presentation, err := retry.Do(ctx, o.stagePolicy(), "present turn", func(ctx context.Context) (stage.Presentation, error) {
		attempts++
		return o.presentOnce(ctx, turn)
	})
	if err == nil {
		span.SetAttributes(attribute.Int("presentation.attempts", attempts))
		o.commit(ctx, turn, presentation)
		return
	}

	failure := &PresentationError{TurnID: turn.ID, Attempts: attempts, Err: err}
	span.RecordError(failure)
	span.SetStatus(codes.Error, failure.Error())
	turn.Fail(failure)
	o.emit(ctx, events.NewPresentationFailed(turn.ID, turn.Speaker, attempts, failure))
}

func (o *Orchestrator) presentOnce(ctx context.Context, turn *turns.Turn) (stage.Presentation, error) {
	presentation, err := o.presenter.Present(ctx, turn)
	if err != nil {
		return presentation, fmt.Errorf("failed to present turn: %w", err)
	}
	o.emit(ctx, events.NewTurnPresented(*turn))

	completion, err := o.presenter.AwaitCompletion(ctx, presentation, o.config.MediaStartTimeout)
	if err != nil {
		return presentation, fmt.Errorf("failed to await completion: %w", err)
	}
	if completion == stage.TimedOut {
		return presentation, fmt.Errorf("playback did not start within %s", o.config.MediaStartTimeout)
	}
	return presentation, nil
}

func (o *Orchestrator) commit(ctx context.Context, turn *turns.Turn, presentation stage.Presentation) {
	if err := turn.Transition(turns.StateDone); err != nil {
		logger.ErrorContext(ctx, "failed to finish turn", "turn_id", turn.ID, "error", err)
		return
	}
	if err := o.conversation.commit(turn); err != nil {
		logger.ErrorContext(ctx, "failed to commit turn", "turn_id", turn.ID, "error", err)
		return
	}

	var sessionRef string
	if presentation.Ref != "" && presentation.Ref != turn.MediaRef() {
		sessionRef = presentation.Ref
	}
	o.emit(ctx, events.NewTurnCommitted(*turn, sessionRef, len(o.conversation.summary)))

	if o.state == StateRunning && o.conversation.turnCount >= o.config.closingAt() {
		o.setState(ctx, StateClosing, "turn budget reached")
	}
	o.refreshSummary()
}

// refreshSummary starts a summary when one is due and none is running. The
// result is applied by the control loop.
func (o *Orchestrator) refreshSummary() bool {
	if o.summarizer == nil || o.summaryInflight || !o.conversation.summaryDue(o.config.SummaryEvery) {
		return false
	}

	snapshot := o.conversation.Snapshot()
	o.summaryInflight = true

	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()

		var summary string
		worker := panicSafeNamedWorker("summary", func(ctx context.Context) error {
			var err error
			summary, err = o.pipeline.Summarize(ctx, snapshot)
			return err
		})
		err := worker(o.genCtx)

		select {
		case o.summaries <- summaryResult{turnCount: snapshot.TurnCount, summary: summary, err: err}:
		case <-o.loopDone:
		}
	}()
	return true
}

func (o *Orchestrator) applySummary(result summaryResult) {
	o.summaryInflight = false
	if result.err != nil {
		if !errors.Is(result.err, context.Canceled) {
			logger.WarnContext(o.stageCtx, "failed to refresh summary", "error", result.err)
		}
		return
	}
	if o.conversation.applySummary(result.turnCount, result.summary) {
		o.emit(o.stageCtx, events.NewSummaryRefreshed(result.turnCount, len(result.summary)))
	}
}
