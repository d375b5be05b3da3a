package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/koscakluka/ema-duet/core/audio"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	providerName     = "openai"
	defaultBaseURL   = "https://api.openai.com/v1"
	speechEndpoint   = "/audio/speech"
	DefaultModel     = "gpt-4o-mini-tts"
	DefaultVoice     = "alloy"
	defaultFormat    = "mp3"
	serverErrorFloor = 500
)

// Synthesizer writes speech from the OpenAI audio API to disk.
type Synthesizer struct {
	apiKey     string
	model      string
	format     string
	voice      string
	outputDir  string
	baseURL    string
	httpClient *http.Client
	prober     audio.Prober
}

type SynthesizerOption func(*Synthesizer)

func WithBaseURL(baseURL string) SynthesizerOption {
	return func(s *Synthesizer) { s.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) SynthesizerOption {
	return func(s *Synthesizer) { s.httpClient = client }
}

func WithModel(model string) SynthesizerOption {
	return func(s *Synthesizer) {
		if model != "" {
			s.model = model
		}
	}
}

func WithVoice(voice string) SynthesizerOption {
	return func(s *Synthesizer) {
		if voice != "" {
			s.voice = voice
		}
	}
}

// WithFormat selects the response format, e.g. "mp3" or "wav".
func WithFormat(format string) SynthesizerOption {
	return func(s *Synthesizer) {
		if format != "" {
			s.format = format
		}
	}
}

func WithProber(prober audio.Prober) SynthesizerOption {
	return func(s *Synthesizer) { s.prober = prober }
}

func NewSynthesizer(apiKey string, outputDir string, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		apiKey:     apiKey,
		model:      DefaultModel,
		format:     defaultFormat,
		voice:      DefaultVoice,
		outputDir:  outputDir,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, name string, text string, opts ...texttospeech.SynthesisOption) (texttospeech.Speech, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	if text == "" {
		return texttospeech.Speech{}, recordErr(span, texttospeech.ErrEmptyText)
	}

	options := texttospeech.NewSynthesisOptions(opts...)
	voice := options.Voice
	if voice == "" {
		voice = s.voice
	}
	path := options.ResolveOutputPath(s.outputDir, name, s.format)
	span.SetAttributes(
		attribute.String("tts.voice", voice),
		attribute.String("tts.model", s.model),
		attribute.String("tts.path", path),
	)

	body, err := json.Marshal(speechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: s.format,
		Speed:          options.Speed,
	})
	if err != nil {
		return texttospeech.Speech{}, recordErr(span, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+speechEndpoint, bytes.NewReader(body))
	if err != nil {
		return texttospeech.Speech{}, recordErr(span, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return texttospeech.Speech{}, recordErr(span, texttospeech.NewSynthesisError(providerName, "", "request failed", err, true))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return texttospeech.Speech{}, recordErr(span, handleError(resp))
	}

	if _, err := texttospeech.WriteFileAtomic(path, resp.Body); err != nil {
		return texttospeech.Speech{}, recordErr(span, texttospeech.NewSynthesisError(providerName, "", "failed to store audio", err, true))
	}
	latency := time.Since(start)

	duration, err := s.prober.Duration(ctx, path)
	if err != nil {
		// The stage falls back to its own estimate when duration is unknown.
		logger.WarnContext(ctx, "failed to measure synthesized audio", "path", path, "error", err)
	}

	return texttospeech.Speech{
		Path:     path,
		Duration: duration,
		Voice:    voice,
		Latency:  latency,
	}, nil
}

func handleError(resp *http.Response) error {
	temporary := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode >= serverErrorFloor

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return texttospeech.NewSynthesisError(providerName, strconv.Itoa(resp.StatusCode), resp.Status, nil, temporary)
	}

	var cause error
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		cause = texttospeech.ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest && errResp.Error.Code == "invalid_voice":
		cause = texttospeech.ErrInvalidVoice
	}

	code := errResp.Error.Code
	if code == "" {
		code = strconv.Itoa(resp.StatusCode)
	}
	return texttospeech.NewSynthesisError(providerName, code, errResp.Error.Message, cause, temporary)
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
