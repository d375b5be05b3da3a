// Package config loads the duet settings from defaults, an optional config
// file and DUET_ environment variables.
package config

import "time"

// Config is the full runtime configuration. Keys use dotted notation, e.g.
// session.max_turns or DUET_SESSION_MAX_TURNS.
type Config struct {
	Session    SessionConfig    `mapstructure:"session"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Topic      TopicConfig      `mapstructure:"topic"`
	Stage      StageConfig      `mapstructure:"stage"`
	LLM        LLMConfig        `mapstructure:"llm"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	Control    ControlConfig    `mapstructure:"control"`
	Log        LogConfig        `mapstructure:"log"`
}

type SessionConfig struct {
	QueueFloor            int           `mapstructure:"queue_floor"`
	MaxTurns              int           `mapstructure:"max_turns"`
	FinalRounds           int           `mapstructure:"final_rounds"`
	MaxSentences          int           `mapstructure:"max_sentences"`
	HistoryWindow         int           `mapstructure:"history_window"`
	SummaryEvery          int           `mapstructure:"summary_every"`
	SlotAttempts          int           `mapstructure:"slot_attempts"`
	PresentationRetries   int           `mapstructure:"presentation_retries"`
	GenerationConcurrency int           `mapstructure:"generation_concurrency"`
	IdleRetryInterval     time.Duration `mapstructure:"idle_retry_interval"`
	MediaStartTimeout     time.Duration `mapstructure:"media_start_timeout"`
	// Timeout stops the session after the given time, 0 runs until done.
	Timeout          time.Duration `mapstructure:"timeout"`
	StrictValidation bool          `mapstructure:"strict_validation"`
	BridgeLines      []string      `mapstructure:"bridge_lines"`
}

type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type TopicConfig struct {
	Default        string        `mapstructure:"default"`
	Env            string        `mapstructure:"env"`
	File           string        `mapstructure:"file"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
	CancelInflight bool          `mapstructure:"cancel_inflight"`
	CommandPrefix  string        `mapstructure:"command_prefix"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	TTL            time.Duration `mapstructure:"ttl"`
	Allowlist      []string      `mapstructure:"allowlist"`
	ModsOnly       bool          `mapstructure:"mods_only"`
}

type StageConfig struct {
	Mode   string       `mapstructure:"mode"`
	OBS    OBSConfig    `mapstructure:"obs"`
	HeyGen HeyGenConfig `mapstructure:"heygen"`
	Text   TextConfig   `mapstructure:"text"`
}

type OBSConfig struct {
	URL          string        `mapstructure:"url"`
	Password     string        `mapstructure:"password"`
	SceneA       string        `mapstructure:"scene_a"`
	SceneB       string        `mapstructure:"scene_b"`
	SceneIdle    string        `mapstructure:"scene_idle"`
	MediaInput   string        `mapstructure:"media_input"`
	VideoInput   string        `mapstructure:"video_input"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPlay      time.Duration `mapstructure:"max_play"`
	PlaybackPad  time.Duration `mapstructure:"playback_pad"`
}

type HeyGenConfig struct {
	APIKey       string `mapstructure:"api_key"`
	AvatarA      string `mapstructure:"avatar_a"`
	AvatarB      string `mapstructure:"avatar_b"`
	VoiceA       string `mapstructure:"voice_a"`
	VoiceB       string `mapstructure:"voice_b"`
	SessionsFile string `mapstructure:"sessions_file"`
	OutputDir    string `mapstructure:"output_dir"`
	// ViewerListen serves the live-session viewer pages, empty disables it.
	ViewerListen string `mapstructure:"viewer_listen"`
	WebRoot      string `mapstructure:"web_root"`
}

type TextConfig struct {
	WordsPerSecond float64       `mapstructure:"words_per_second"`
	MinHold        time.Duration `mapstructure:"min_hold"`
}

type LLMConfig struct {
	// Provider is openai or groq.
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	// BaseURL points the client at a compatible endpoint, empty uses the
	// provider's public API.
	BaseURL  string `mapstructure:"base_url"`
	PersonaA string `mapstructure:"persona_a"`
	PersonaB string `mapstructure:"persona_b"`
}

type TTSConfig struct {
	// Provider is openai, deepgram or none.
	Provider  string `mapstructure:"provider"`
	APIKey    string `mapstructure:"api_key"`
	VoiceA    string `mapstructure:"voice_a"`
	VoiceB    string `mapstructure:"voice_b"`
	OutputDir string `mapstructure:"output_dir"`
}

type TranscriptConfig struct {
	Path  string      `mapstructure:"path"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig enables the Kafka transcript sink when Brokers is set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type YouTubeConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIKey       string        `mapstructure:"api_key"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RefreshToken string        `mapstructure:"refresh_token"`
	LiveChatID   string        `mapstructure:"live_chat_id"`
	BroadcastID  string        `mapstructure:"broadcast_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ControlConfig struct {
	// Listen is the control HTTP address, empty disables the server.
	Listen string `mapstructure:"listen"`
	// Token guards POST /topic when set.
	Token string `mapstructure:"token"`
}

type LogConfig struct {
	Debug  bool   `mapstructure:"debug"`
	Pretty bool   `mapstructure:"pretty"`
	JSON   bool   `mapstructure:"json"`
	File   string `mapstructure:"file"`
}
