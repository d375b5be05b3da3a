package config

import (
	"time"

	orchestration "github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/stage/obs"
	"github.com/koscakluka/ema-duet/core/topic"
)

const (
	DefaultConfigName     = "duet"
	DefaultTranscriptPath = "transcript.jsonl"
	DefaultAudioDir       = "out/audio"
	DefaultVideoDir       = "out/video"
	DefaultSessionsFile   = "out/heygen_sessions.json"
	DefaultViewerListen   = "127.0.0.1:8099"
	DefaultWebRoot        = "web"
)

// NewDefaultConfig returns the configuration used when nothing is set.
func NewDefaultConfig() *Config {
	session := orchestration.DefaultConfig()
	policy := retry.DefaultPolicy()

	return &Config{
		Session: SessionConfig{
			QueueFloor:          session.QueueFloor,
			MaxTurns:            session.MaxTurns,
			FinalRounds:         session.FinalRounds,
			MaxSentences:        session.MaxSentences,
			HistoryWindow:       session.HistoryWindow,
			SummaryEvery:        session.SummaryEvery,
			SlotAttempts:        session.SlotAttempts,
			PresentationRetries: session.PresentationRetries,
			IdleRetryInterval:   session.IdleRetryInterval,
			MediaStartTimeout:   session.MediaStartTimeout,
			StrictValidation:    session.StrictValidation,
			BridgeLines:         session.BridgeLines,
		},
		Retry: RetryConfig{
			MaxRetries:     policy.MaxRetries,
			AttemptTimeout: policy.AttemptTimeout,
			BackoffBase:    policy.BackoffBase,
			MaxBackoff:     policy.MaxBackoff,
		},
		Topic: TopicConfig{
			Default:        topic.DefaultTopic,
			ReloadInterval: topic.DefaultReloadInterval,
			CommandPrefix:  topic.DefaultCommandPrefix,
			Cooldown:       topic.DefaultCooldown,
			TTL:            topic.DefaultChatTTL,
			ModsOnly:       true,
		},
		Stage: StageConfig{
			Mode: string(stage.ModeStaticImage),
			OBS: OBSConfig{
				URL:          obs.DefaultURL,
				SceneA:       "Speaker A",
				SceneB:       "Speaker B",
				SceneIdle:    "Idle",
				MediaInput:   "Turn Audio",
				VideoInput:   "Turn Video",
				PollInterval: stage.DefaultPollInterval,
				MaxPlay:      stage.DefaultMaxPlay,
				PlaybackPad:  stage.DefaultPlaybackPad,
			},
			HeyGen: HeyGenConfig{
				SessionsFile: DefaultSessionsFile,
				OutputDir:    DefaultVideoDir,
				ViewerListen: DefaultViewerListen,
				WebRoot:      DefaultWebRoot,
			},
			Text: TextConfig{WordsPerSecond: stage.DefaultWordsPerSecond, MinHold: stage.DefaultMinHold},
		},
		LLM: LLMConfig{Provider: "openai"},
		TTS: TTSConfig{
			Provider:  "openai",
			VoiceA:    "alloy",
			VoiceB:    "echo",
			OutputDir: DefaultAudioDir,
		},
		Transcript: TranscriptConfig{Path: DefaultTranscriptPath},
		YouTube:    YouTubeConfig{PollInterval: 2 * time.Second},
	}
}
