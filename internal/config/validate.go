package config

import (
	"slices"

	orchestration "github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/stage"
)

var (
	llmProviders = []string{"openai", "groq"}
	ttsProviders = []string{"openai", "deepgram", "none"}
)

// Validate checks every setting and reports all problems at once as an
// *orchestration.ConfigurationError.
func (c *Config) Validate() error {
	problems := &orchestration.ConfigurationError{}

	s := c.Session
	if s.QueueFloor < 1 {
		problems.Add("session.queue_floor must be at least 1, got %d", s.QueueFloor)
	}
	if s.MaxTurns < 2 {
		problems.Add("session.max_turns must be at least 2, got %d", s.MaxTurns)
	}
	if s.FinalRounds < 0 || s.FinalRounds >= s.MaxTurns {
		problems.Add("session.final_rounds must be between 0 and max_turns-1, got %d", s.FinalRounds)
	}
	if s.MaxSentences < 1 {
		problems.Add("session.max_sentences must be at least 1, got %d", s.MaxSentences)
	}
	if s.HistoryWindow < 1 {
		problems.Add("session.history_window must be at least 1, got %d", s.HistoryWindow)
	}
	if s.SummaryEvery < 1 {
		problems.Add("session.summary_every must be at least 1, got %d", s.SummaryEvery)
	}
	if s.SlotAttempts < 1 {
		problems.Add("session.slot_attempts must be at least 1, got %d", s.SlotAttempts)
	}
	if s.PresentationRetries < 0 {
		problems.Add("session.presentation_retries must not be negative, got %d", s.PresentationRetries)
	}
	if s.GenerationConcurrency < 0 {
		problems.Add("session.generation_concurrency must not be negative, got %d", s.GenerationConcurrency)
	}
	if s.IdleRetryInterval <= 0 {
		problems.Add("session.idle_retry_interval must be positive")
	}
	if s.MediaStartTimeout <= 0 {
		problems.Add("session.media_start_timeout must be positive")
	}
	if s.Timeout < 0 {
		problems.Add("session.timeout must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		problems.Add("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}

	if !slices.Contains(llmProviders, c.LLM.Provider) {
		problems.Add("llm.provider must be one of %v, got %q", llmProviders, c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		problems.Add("llm.api_key is required")
	}

	mode, err := stage.ParseMode(c.Stage.Mode)
	if err != nil {
		problems.Add("stage.mode: %v", err)
	}

	if !slices.Contains(ttsProviders, c.TTS.Provider) {
		problems.Add("tts.provider must be one of %v, got %q", ttsProviders, c.TTS.Provider)
	} else if mode.NeedsAudio() {
		if c.TTS.Provider == "none" {
			problems.Add("stage.mode %s needs audio but tts.provider is none", mode)
		} else if c.TTS.APIKey == "" {
			problems.Add("tts.api_key is required for stage.mode %s", mode)
		}
	}

	if mode == stage.ModeLiveSession || mode == stage.ModePrerenderedVideo {
		if c.Stage.HeyGen.APIKey == "" {
			problems.Add("stage.heygen.api_key is required for stage.mode %s", mode)
		}
		if c.Stage.HeyGen.AvatarA == "" || c.Stage.HeyGen.AvatarB == "" {
			problems.Add("stage.heygen.avatar_a and avatar_b are required for stage.mode %s", mode)
		}
	}

	if c.Topic.File != "" && c.Topic.ReloadInterval <= 0 {
		problems.Add("topic.reload_interval must be positive when topic.file is set")
	}
	if c.Topic.TTL <= 0 {
		problems.Add("topic.ttl must be positive")
	}

	if len(c.Transcript.Kafka.Brokers) > 0 && c.Transcript.Kafka.Topic == "" {
		problems.Add("transcript.kafka.topic is required when brokers are set")
	}

	if c.YouTube.Enabled {
		oauth := c.YouTube.ClientID != "" && c.YouTube.ClientSecret != "" && c.YouTube.RefreshToken != ""
		if !oauth && c.YouTube.APIKey == "" {
			problems.Add("youtube needs client_id, client_secret and refresh_token, or an api_key")
		}
		if c.YouTube.LiveChatID == "" && c.YouTube.BroadcastID == "" {
			problems.Add("youtube.live_chat_id or youtube.broadcast_id is required")
		}
	}

	return problems.Err()
}
