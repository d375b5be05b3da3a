package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "DUET"

// InitViper creates a viper instance with every default registered, the
// config file read and DUET_ environment variables bound.
//
// When configFile is empty a duet.yaml in the working directory is used if
// present. An explicit configFile must exist.
//
// Precedence, highest first: flags bound by the caller, environment, config
// file, defaults.
func InitViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load decodes the viper state into a Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// setViperDefaults registers every key so environment variables are picked
// up by Unmarshal. NewDefaultConfig stays the single source of defaults.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("session.queue_floor", d.Session.QueueFloor)
	v.SetDefault("session.max_turns", d.Session.MaxTurns)
	v.SetDefault("session.final_rounds", d.Session.FinalRounds)
	v.SetDefault("session.max_sentences", d.Session.MaxSentences)
	v.SetDefault("session.history_window", d.Session.HistoryWindow)
	v.SetDefault("session.summary_every", d.Session.SummaryEvery)
	v.SetDefault("session.slot_attempts", d.Session.SlotAttempts)
	v.SetDefault("session.presentation_retries", d.Session.PresentationRetries)
	v.SetDefault("session.generation_concurrency", d.Session.GenerationConcurrency)
	v.SetDefault("session.idle_retry_interval", d.Session.IdleRetryInterval)
	v.SetDefault("session.media_start_timeout", d.Session.MediaStartTimeout)
	v.SetDefault("session.timeout", d.Session.Timeout)
	v.SetDefault("session.strict_validation", d.Session.StrictValidation)
	v.SetDefault("session.bridge_lines", d.Session.BridgeLines)

	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.attempt_timeout", d.Retry.AttemptTimeout)
	v.SetDefault("retry.backoff_base", d.Retry.BackoffBase)
	v.SetDefault("retry.max_backoff", d.Retry.MaxBackoff)

	v.SetDefault("topic.default", d.Topic.Default)
	v.SetDefault("topic.env", d.Topic.Env)
	v.SetDefault("topic.file", d.Topic.File)
	v.SetDefault("topic.reload_interval", d.Topic.ReloadInterval)
	v.SetDefault("topic.cancel_inflight", d.Topic.CancelInflight)
	v.SetDefault("topic.command_prefix", d.Topic.CommandPrefix)
	v.SetDefault("topic.cooldown", d.Topic.Cooldown)
	v.SetDefault("topic.ttl", d.Topic.TTL)
	v.SetDefault("topic.allowlist", d.Topic.Allowlist)
	v.SetDefault("topic.mods_only", d.Topic.ModsOnly)

	v.SetDefault("stage.mode", d.Stage.Mode)
	v.SetDefault("stage.obs.url", d.Stage.OBS.URL)
	v.SetDefault("stage.obs.password", d.Stage.OBS.Password)
	v.SetDefault("stage.obs.scene_a", d.Stage.OBS.SceneA)
	v.SetDefault("stage.obs.scene_b", d.Stage.OBS.SceneB)
	v.SetDefault("stage.obs.scene_idle", d.Stage.OBS.SceneIdle)
	v.SetDefault("stage.obs.media_input", d.Stage.OBS.MediaInput)
	v.SetDefault("stage.obs.video_input", d.Stage.OBS.VideoInput)
	v.SetDefault("stage.obs.poll_interval", d.Stage.OBS.PollInterval)
	v.SetDefault("stage.obs.max_play", d.Stage.OBS.MaxPlay)
	v.SetDefault("stage.obs.playback_pad", d.Stage.OBS.PlaybackPad)
	v.SetDefault("stage.heygen.api_key", d.Stage.HeyGen.APIKey)
	v.SetDefault("stage.heygen.avatar_a", d.Stage.HeyGen.AvatarA)
	v.SetDefault("stage.heygen.avatar_b", d.Stage.HeyGen.AvatarB)
	v.SetDefault("stage.heygen.voice_a", d.Stage.HeyGen.VoiceA)
	v.SetDefault("stage.heygen.voice_b", d.Stage.HeyGen.VoiceB)
	v.SetDefault("stage.heygen.sessions_file", d.Stage.HeyGen.SessionsFile)
	v.SetDefault("stage.heygen.output_dir", d.Stage.HeyGen.OutputDir)
	v.SetDefault("stage.heygen.viewer_listen", d.Stage.HeyGen.ViewerListen)
	v.SetDefault("stage.heygen.web_root", d.Stage.HeyGen.WebRoot)
	v.SetDefault("stage.text.words_per_second", d.Stage.Text.WordsPerSecond)
	v.SetDefault("stage.text.min_hold", d.Stage.Text.MinHold)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.persona_a", d.LLM.PersonaA)
	v.SetDefault("llm.persona_b", d.LLM.PersonaB)

	v.SetDefault("tts.provider", d.TTS.Provider)
	v.SetDefault("tts.api_key", d.TTS.APIKey)
	v.SetDefault("tts.voice_a", d.TTS.VoiceA)
	v.SetDefault("tts.voice_b", d.TTS.VoiceB)
	v.SetDefault("tts.output_dir", d.TTS.OutputDir)

	v.SetDefault("transcript.path", d.Transcript.Path)
	v.SetDefault("transcript.kafka.brokers", d.Transcript.Kafka.Brokers)
	v.SetDefault("transcript.kafka.topic", d.Transcript.Kafka.Topic)

	v.SetDefault("youtube.enabled", d.YouTube.Enabled)
	v.SetDefault("youtube.api_key", d.YouTube.APIKey)
	v.SetDefault("youtube.client_id", d.YouTube.ClientID)
	v.SetDefault("youtube.client_secret", d.YouTube.ClientSecret)
	v.SetDefault("youtube.refresh_token", d.YouTube.RefreshToken)
	v.SetDefault("youtube.live_chat_id", d.YouTube.LiveChatID)
	v.SetDefault("youtube.broadcast_id", d.YouTube.BroadcastID)
	v.SetDefault("youtube.poll_interval", d.YouTube.PollInterval)

	v.SetDefault("control.listen", d.Control.Listen)
	v.SetDefault("control.token", d.Control.Token)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)
}
