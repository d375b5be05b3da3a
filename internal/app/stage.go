package app

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/stage/heygen"
	"github.com/koscakluka/ema-duet/core/stage/obs"
	"github.com/koscakluka/ema-duet/core/turns"
	"github.com/koscakluka/ema-duet/internal/config"
)

// newPresenter connects the backends the stage mode needs. OBS connections are
// closed with the app.
func (a *App) newPresenter(ctx context.Context) (stage.Presenter, error) {
	cfg := a.cfg.Stage

	switch a.mode {
	case stage.ModeTextOnly:
		return stage.NewTextOnly(
			stage.WithWordsPerSecond(cfg.Text.WordsPerSecond),
			stage.WithMinHold(cfg.Text.MinHold),
		), nil

	case stage.ModeStaticImage:
		client, err := a.dialOBS(ctx, cfg.OBS)
		if err != nil {
			return nil, err
		}
		return stage.NewMediaPresenter(client, mediaConfig(cfg.OBS, cfg.OBS.MediaInput)), nil

	case stage.ModePrerenderedVideo:
		renderer, err := heygen.NewClient(cfg.HeyGen.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create heygen client: %w", err)
		}
		client, err := a.dialOBS(ctx, cfg.OBS)
		if err != nil {
			return nil, err
		}
		avatars := map[turns.Speaker]string{
			turns.SpeakerA: cfg.HeyGen.AvatarA,
			turns.SpeakerB: cfg.HeyGen.AvatarB,
		}
		return stage.NewPrerenderedVideo(client, renderer, mediaConfig(cfg.OBS, cfg.OBS.VideoInput), avatars, cfg.HeyGen.OutputDir), nil

	case stage.ModeLiveSession:
		streaming, err := heygen.NewClient(cfg.HeyGen.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create heygen client: %w", err)
		}
		agents := map[turns.Speaker]heygen.SessionRequest{
			turns.SpeakerA: {AvatarName: cfg.HeyGen.AvatarA, VoiceID: cfg.HeyGen.VoiceA},
			turns.SpeakerB: {AvatarName: cfg.HeyGen.AvatarB, VoiceID: cfg.HeyGen.VoiceB},
		}
		opts := []stage.LiveSessionOption{
			stage.WithSessionsFile(cfg.HeyGen.SessionsFile),
			stage.WithSpeakingRate(cfg.Text.WordsPerSecond, cfg.OBS.PlaybackPad),
		}

		// The scene switch is optional in this mode, a single shared view
		// works without OBS.
		if client, err := a.dialOBS(ctx, cfg.OBS); err != nil {
			a.logger.WarnContext(ctx, "obs unavailable, live session runs without scene switching", "error", err)
		} else {
			opts = append(opts, stage.WithSceneSwitcher(client, scenes(cfg.OBS)))
		}
		return stage.NewLiveSession(streaming, agents, opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", stage.ErrUnknownMode, a.mode)
}

func (a *App) dialOBS(ctx context.Context, cfg config.OBSConfig) (*obs.Client, error) {
	var opts []obs.ClientOption
	if cfg.Password != "" {
		opts = append(opts, obs.WithPassword(cfg.Password))
	}

	client, err := obs.Dial(ctx, cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to obs at %s: %w", cfg.URL, err)
	}
	a.closers = append(a.closers, client)
	return client, nil
}

func scenes(cfg config.OBSConfig) stage.Scenes {
	return stage.Scenes{A: cfg.SceneA, B: cfg.SceneB, Idle: cfg.SceneIdle}
}

func mediaConfig(cfg config.OBSConfig, input string) stage.MediaConfig {
	return stage.MediaConfig{
		Scenes:       scenes(cfg),
		Input:        input,
		PollInterval: cfg.PollInterval,
		MaxPlay:      cfg.MaxPlay,
		PlaybackPad:  cfg.PlaybackPad,
	}
}
