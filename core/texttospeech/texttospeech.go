// Package texttospeech turns a line of dialogue into an audio file the stage
// can play.
package texttospeech

import (
	"context"
	"time"

	"github.com/koscakluka/ema-duet/core/audio"
)

// Speech is a synthesized audio asset on disk.
type Speech struct {
	Path     string
	Duration time.Duration
	Voice    string
	Encoding audio.EncodingInfo
	Latency  time.Duration
}

type Synthesizer interface {
	// Synthesize writes audio for text and reports where it ended up. The file
	// only appears at its final path once it is complete.
	Synthesize(ctx context.Context, name string, text string, opts ...SynthesisOption) (Speech, error)
}
