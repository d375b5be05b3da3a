package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/koscakluka/ema-duet/core/turns"
)

// VideoRenderer turns an audio track into an avatar video on disk.
type VideoRenderer interface {
	RenderVideo(ctx context.Context, avatarID string, audioPath string, outPath string) error
}

// PrerenderedVideo renders an avatar video per turn while the turn is still
// in the queue and plays it through OBS like any other media file.
type PrerenderedVideo struct {
	*MediaPresenter

	renderer  VideoRenderer
	avatars   map[turns.Speaker]string
	outputDir string
}

func NewPrerenderedVideo(controller MediaController, renderer VideoRenderer, cfg MediaConfig, avatars map[turns.Speaker]string, outputDir string) *PrerenderedVideo {
	return &PrerenderedVideo{
		MediaPresenter: NewMediaPresenter(controller, cfg),
		renderer:       renderer,
		avatars:        avatars,
		outputDir:      outputDir,
	}
}

func (p *PrerenderedVideo) SelfCheck(ctx context.Context) error {
	for _, speaker := range []turns.Speaker{turns.SpeakerA, turns.SpeakerB} {
		if p.avatars[speaker] == "" {
			return fmt.Errorf("no avatar configured for speaker %s", speaker)
		}
	}
	return p.MediaPresenter.SelfCheck(ctx)
}

// Prepare renders the video for a turn. Bridging turns keep their plain
// audio.
func (p *PrerenderedVideo) Prepare(ctx context.Context, turn *turns.Turn) (string, error) {
	if turn.IsBridging() {
		return "", nil
	}
	if turn.AudioRef == "" {
		return "", fmt.Errorf("%w: turn %d has no audio to render", ErrMissingMedia, turn.ID)
	}

	ctx, span := tracer.Start(ctx, "prepare video")
	defer span.End()

	outPath := filepath.Join(p.outputDir, fmt.Sprintf("%04d_%s.mp4", turn.ID, turn.Speaker))
	if err := p.renderer.RenderVideo(ctx, p.avatars[turn.Speaker], turn.AudioRef, outPath); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to render video for turn %d: %w", turn.ID, err)
	}
	return outPath, nil
}
