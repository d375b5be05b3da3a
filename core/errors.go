package orchestration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-duet/core/turns"
)

var (
	ErrGeneration       = errors.New("generation failed")
	ErrSynthesis        = errors.New("synthesis failed")
	ErrPresentation     = errors.New("presentation failed")
	ErrStageUnavailable = errors.New("stage unavailable")
	ErrConfiguration    = errors.New("invalid configuration")

	ErrAlreadyStarted = errors.New("session already started")
	ErrEmptyText      = errors.New("generated text is empty")
	ErrRepeatedText   = errors.New("generated text repeats a recent turn")
	ErrOutOfOrder     = errors.New("turn committed out of order")
)

// GenerationError is a text backend failure for one slot, after retries.
type GenerationError struct {
	TurnID  int
	Speaker turns.Speaker
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("turn %d (%s): %s: %v", e.TurnID, e.Speaker, ErrGeneration, e.Err)
}

func (e *GenerationError) Unwrap() error        { return e.Err }
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// SynthesisError is an audio or asset backend failure for one slot, after
// retries.
type SynthesisError struct {
	TurnID int
	// Step is "synthesize", "bridge" or "prepare".
	Step string
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("turn %d: %s (%s): %v", e.TurnID, ErrSynthesis, e.Step, e.Err)
}

func (e *SynthesisError) Unwrap() error        { return e.Err }
func (e *SynthesisError) Is(target error) bool { return target == ErrSynthesis }

// PresentationError is a stage failure for a dequeued turn, including a
// playback that never started.
type PresentationError struct {
	TurnID   int
	Attempts int
	Err      error
}

func (e *PresentationError) Error() string {
	return fmt.Sprintf("turn %d: %s after %d attempt(s): %v", e.TurnID, ErrPresentation, e.Attempts, e.Err)
}

func (e *PresentationError) Unwrap() error        { return e.Err }
func (e *PresentationError) Is(target error) bool { return target == ErrPresentation }

// StageUnavailableError wraps a failed presenter self-check.
type StageUnavailableError struct {
	Err error
}

func (e *StageUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrStageUnavailable, e.Err)
}

func (e *StageUnavailableError) Unwrap() error        { return e.Err }
func (e *StageUnavailableError) Is(target error) bool { return target == ErrStageUnavailable }

// ConfigurationError lists every invalid or missing setting found.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Add records a problem. It is a no-op on a nil receiver.
func (e *ConfigurationError) Add(format string, args ...any) {
	if e == nil {
		return
	}
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Err returns nil when no problems were recorded.
func (e *ConfigurationError) Err() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}
