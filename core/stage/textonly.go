package stage

import (
	"context"
	"time"

	"github.com/koscakluka/ema-duet/core/turns"
)

// DefaultMinHold is the shortest time a text turn stays on stage.
const DefaultMinHold = 500 * time.Millisecond

// TextOnly prints turns to the log and holds each one for its spoken length.
// It is the fallback when no visual stage is available.
type TextOnly struct {
	wordsPerSecond float64
	minHold        time.Duration
}

type TextOnlyOption func(*TextOnly)

func WithWordsPerSecond(wordsPerSecond float64) TextOnlyOption {
	return func(p *TextOnly) {
		if wordsPerSecond > 0 {
			p.wordsPerSecond = wordsPerSecond
		}
	}
}

// WithMinHold sets the shortest time a turn stays on stage.
func WithMinHold(hold time.Duration) TextOnlyOption {
	return func(p *TextOnly) { p.minHold = hold }
}

func NewTextOnly(opts ...TextOnlyOption) *TextOnly {
	p := &TextOnly{
		wordsPerSecond: DefaultWordsPerSecond,
		minHold:        DefaultMinHold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TextOnly) SelfCheck(context.Context) error { return nil }

func (p *TextOnly) Present(ctx context.Context, turn *turns.Turn) (Presentation, error) {
	duration := turn.AudioDuration
	if duration <= 0 {
		duration = EstimateDuration(turn.Text, p.wordsPerSecond)
	}
	duration = max(duration, p.minHold)

	logger.InfoContext(ctx, turn.Text, "turn_id", turn.ID, "speaker", string(turn.Speaker), "kind", string(turn.Kind))
	return Presentation{
		TurnID:    turn.ID,
		Speaker:   turn.Speaker,
		Ref:       turn.MediaRef(),
		Duration:  duration,
		StartedAt: time.Now(),
	}, nil
}

func (p *TextOnly) AwaitCompletion(ctx context.Context, presentation Presentation, _ time.Duration) (Completion, error) {
	remaining := presentation.Duration - time.Since(presentation.StartedAt)
	if err := sleepContext(ctx, remaining); err != nil {
		return Completed, err
	}
	return Completed, nil
}

func (p *TextOnly) Idle(ctx context.Context) error {
	logger.InfoContext(ctx, "stage idle")
	return nil
}
