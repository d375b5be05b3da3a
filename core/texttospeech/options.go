package texttospeech

import (
	"fmt"
	"path/filepath"

	"github.com/koscakluka/ema-duet/core/audio"
)

type SynthesisOptions struct {
	// Voice overrides the synthesizer's default voice.
	Voice string
	// OutputPath is where the finished audio file is written. When empty the
	// synthesizer picks a name in its output directory.
	OutputPath string
	// Speed is a playback speed multiplier, 0 means provider default.
	Speed float64

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithOutputPath(path string) SynthesisOption {
	return func(o *SynthesisOptions) { o.OutputPath = path }
}

func WithSpeed(speed float64) SynthesisOption {
	return func(o *SynthesisOptions) { o.Speed = speed }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

func NewSynthesisOptions(opts ...SynthesisOption) SynthesisOptions {
	options := SynthesisOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// ResolveOutputPath returns OutputPath, or a per-turn file name inside dir.
func (o SynthesisOptions) ResolveOutputPath(dir string, name string, ext string) string {
	if o.OutputPath != "" {
		return o.OutputPath
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s", name, ext))
}
