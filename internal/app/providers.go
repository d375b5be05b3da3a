package app

import (
	"fmt"
	"strings"

	orchestration "github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/llms/groq"
	"github.com/koscakluka/ema-duet/core/llms/openai"
	"github.com/koscakluka/ema-duet/core/metrics"
	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/texttospeech/deepgram"
	ttsopenai "github.com/koscakluka/ema-duet/core/texttospeech/openai"
	"github.com/koscakluka/ema-duet/core/turns"
	"github.com/koscakluka/ema-duet/internal/config"
)

// languageModel writes turns and keeps the running summary. Both providers
// serve both.
type languageModel interface {
	orchestration.Generator
	orchestration.Summarizer
}

func newLanguageModel(cfg config.LLMConfig) (languageModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		var opts []openai.ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewClient(cfg.APIKey, cfg.Model, opts...), nil
	case "groq":
		var opts []groq.ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(cfg.BaseURL))
		}
		return groq.NewClient(cfg.APIKey, cfg.Model, opts...), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// newSynthesizer returns nil when speech is disabled.
func newSynthesizer(cfg config.TTSConfig) (orchestration.Synthesizer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "openai":
		return ttsopenai.NewSynthesizer(cfg.APIKey, cfg.OutputDir), nil
	case "deepgram":
		// Voices are chosen per turn.
		synthesizer, err := deepgram.NewSynthesizer(cfg.APIKey, cfg.OutputDir, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create deepgram synthesizer: %w", err)
		}
		return synthesizer, nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.AttemptTimeout = cfg.AttemptTimeout
	if cfg.BackoffBase > 0 {
		policy.BackoffBase = cfg.BackoffBase
	}
	if cfg.MaxBackoff > 0 {
		policy.MaxBackoff = cfg.MaxBackoff
	}
	policy.OnRetry = metrics.RecordRetry
	return policy
}

func sessionConfig(cfg *config.Config, mode stage.Mode, withAudio bool) orchestration.Config {
	s := cfg.Session
	session := orchestration.Config{
		QueueFloor:                  s.QueueFloor,
		MaxTurns:                    s.MaxTurns,
		FinalRounds:                 s.FinalRounds,
		MaxSentences:                s.MaxSentences,
		HistoryWindow:               s.HistoryWindow,
		SummaryEvery:                s.SummaryEvery,
		SlotAttempts:                s.SlotAttempts,
		PresentationRetries:         s.PresentationRetries,
		GenerationConcurrency:       s.GenerationConcurrency,
		IdleRetryInterval:           s.IdleRetryInterval,
		MediaStartTimeout:           s.MediaStartTimeout,
		SessionTimeout:              s.Timeout,
		StrictValidation:            s.StrictValidation,
		CancelInflightOnTopicChange: cfg.Topic.CancelInflight,
		NeedsAudio:                  withAudio && mode.NeedsAudio(),
		BridgeLines:                 s.BridgeLines,
		Retry:                       retryPolicy(cfg.Retry),
	}

	personas := map[turns.Speaker]string{}
	if cfg.LLM.PersonaA != "" {
		personas[turns.SpeakerA] = cfg.LLM.PersonaA
	}
	if cfg.LLM.PersonaB != "" {
		personas[turns.SpeakerB] = cfg.LLM.PersonaB
	}
	if len(personas) > 0 {
		session.Personas = personas
	}

	session.Voices = map[turns.Speaker]string{
		turns.SpeakerA: cfg.TTS.VoiceA,
		turns.SpeakerB: cfg.TTS.VoiceB,
	}
	return session
}
