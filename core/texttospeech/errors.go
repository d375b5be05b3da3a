package texttospeech

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyText    = errors.New("text is empty")
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidVoice = errors.New("invalid voice")
	ErrEmptyAudio   = errors.New("provider returned no audio")
)

// SynthesisError is a provider failure with enough detail to decide on a
// retry.
type SynthesisError struct {
	Provider  string
	Code      string
	Message   string
	Cause     error
	Temporary bool
}

func NewSynthesisError(provider, code, message string, cause error, temporary bool) *SynthesisError {
	return &SynthesisError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Temporary: temporary,
	}
}

func (e *SynthesisError) Error() string {
	msg := fmt.Sprintf("%s synthesis failed", e.Provider)
	if e.Code != "" {
		msg += fmt.Sprintf(" (%s)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

func (e *SynthesisError) Retryable() bool { return e.Temporary }
