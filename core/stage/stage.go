// Package stage makes turns visible and audible on the live output. Every
// presentation mode implements Presenter; the orchestrator never knows which
// one it is driving.
package stage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/koscakluka/ema-duet/core/turns"
)

var (
	ErrMissingScene = errors.New("scene not found")
	ErrMissingMedia = errors.New("media file not found")
	ErrUnknownMode  = errors.New("unknown stage mode")
)

type Mode string

const (
	ModeStaticImage      Mode = "static-image"
	ModeLiveSession      Mode = "live-session"
	ModePrerenderedVideo Mode = "pre-rendered-video"
	ModeTextOnly         Mode = "text-only"
)

// ParseMode accepts the canonical names and the short aliases used in older
// deployments.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ModeStaticImage), "png", "static":
		return ModeStaticImage, nil
	case string(ModeLiveSession), "heygen_stream", "stream", "streaming":
		return ModeLiveSession, nil
	case string(ModePrerenderedVideo), "heygen_video", "video":
		return ModePrerenderedVideo, nil
	case string(ModeTextOnly), "text":
		return ModeTextOnly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

// NeedsAudio reports whether turns must carry synthesized audio in this mode.
func (m Mode) NeedsAudio() bool {
	return m == ModeStaticImage || m == ModePrerenderedVideo
}

// Presentation is a turn that has been handed to the stage.
type Presentation struct {
	TurnID    int
	Speaker   turns.Speaker
	Ref       string
	Duration  time.Duration
	StartedAt time.Time
}

type Completion int

const (
	Completed Completion = iota
	TimedOut
)

func (c Completion) String() string {
	if c == TimedOut {
		return "timed_out"
	}
	return "completed"
}

type Presenter interface {
	// SelfCheck verifies the stage is reachable and configured before the
	// session starts.
	SelfCheck(ctx context.Context) error
	// Present makes the turn live.
	Present(ctx context.Context, turn *turns.Turn) (Presentation, error)
	// AwaitCompletion blocks until the presentation finished. TimedOut means
	// it did not start within startTimeout.
	AwaitCompletion(ctx context.Context, presentation Presentation, startTimeout time.Duration) (Completion, error)
	// Idle parks the stage on a neutral presentation.
	Idle(ctx context.Context) error
}

// Preparer is implemented by presenters that build their own asset for a
// turn ahead of time. It runs inside the turn pipeline.
type Preparer interface {
	Prepare(ctx context.Context, turn *turns.Turn) (string, error)
}

// Closer is implemented by presenters holding remote resources.
type Closer interface {
	Close(ctx context.Context) error
}

const DefaultWordsPerSecond = 2.5

// EstimateDuration guesses how long text takes to speak.
func EstimateDuration(text string, wordsPerSecond float64) time.Duration {
	if wordsPerSecond <= 0 {
		wordsPerSecond = DefaultWordsPerSecond
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	seconds := math.Max(float64(words)/wordsPerSecond, 0.3)
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
