package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-duet/core/audio"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	providerName    = "deepgram"
	defaultEndpoint = "wss://api.deepgram.com/v1/speak"
)

var ErrInvalidVoice = fmt.Errorf("%w: not a deepgram voice", texttospeech.ErrInvalidVoice)

// Synthesizer speaks a whole line over Deepgram's streaming websocket and
// stores the raw audio as a WAV file.
type Synthesizer struct {
	apiKey       string
	voice        deepgramVoice
	outputDir    string
	endpoint     string
	dialer       *websocket.Dialer
	encodingInfo audio.EncodingInfo
}

type SynthesizerOption func(*Synthesizer)

// WithEndpoint points the synthesizer at another websocket URL.
func WithEndpoint(endpoint string) SynthesizerOption {
	return func(s *Synthesizer) { s.endpoint = endpoint }
}

func WithDialer(dialer *websocket.Dialer) SynthesizerOption {
	return func(s *Synthesizer) { s.dialer = dialer }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesizerOption {
	return func(s *Synthesizer) {
		if encodingInfo.IsZero() || encodingInfo.Format.ByteSize() <= 0 {
			return
		}
		s.encodingInfo = encodingInfo
	}
}

func NewSynthesizer(apiKey string, outputDir string, voice string, opts ...SynthesizerOption) (*Synthesizer, error) {
	s := &Synthesizer{
		apiKey:       apiKey,
		voice:        defaultVoice,
		outputDir:    outputDir,
		endpoint:     defaultEndpoint,
		dialer:       websocket.DefaultDialer,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}

	if voice != "" {
		if !slices.Contains(GetAvailableVoices(), deepgramVoice(voice)) {
			return nil, ErrInvalidVoice
		}
		s.voice = deepgramVoice(voice)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, name string, text string, opts ...texttospeech.SynthesisOption) (texttospeech.Speech, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	if text == "" {
		return texttospeech.Speech{}, recordErr(span, texttospeech.ErrEmptyText)
	}

	options := texttospeech.NewSynthesisOptions(opts...)
	voice := s.voice
	if options.Voice != "" {
		if !slices.Contains(GetAvailableVoices(), deepgramVoice(options.Voice)) {
			return texttospeech.Speech{}, recordErr(span, texttospeech.NewSynthesisError(providerName, "", options.Voice, ErrInvalidVoice, false))
		}
		voice = deepgramVoice(options.Voice)
	}
	path := options.ResolveOutputPath(s.outputDir, name, "wav")
	span.SetAttributes(
		attribute.String("tts.voice", string(voice)),
		attribute.String("tts.path", path),
	)

	start := time.Now()
	data, err := s.speak(ctx, voice, text)
	if err != nil {
		return texttospeech.Speech{}, recordErr(span, err)
	}
	latency := time.Since(start)

	var header bytes.Buffer
	if err := audio.WriteWAVHeader(&header, s.encodingInfo, len(data)); err != nil {
		return texttospeech.Speech{}, recordErr(span, texttospeech.NewSynthesisError(providerName, "", "failed to build WAV header", err, false))
	}
	if _, err := texttospeech.WriteFileAtomic(path, io.MultiReader(&header, bytes.NewReader(data))); err != nil {
		return texttospeech.Speech{}, recordErr(span, texttospeech.NewSynthesisError(providerName, "", "failed to store audio", err, true))
	}

	return texttospeech.Speech{
		Path:     path,
		Duration: s.encodingInfo.DurationOf(len(data)),
		Voice:    string(voice),
		Encoding: s.encodingInfo,
		Latency:  latency,
	}, nil
}

// speak sends the text followed by a flush and collects audio until the
// server confirms the flush.
func (s *Synthesizer) speak(ctx context.Context, voice deepgramVoice, text string) ([]byte, error) {
	conn, err := s.connect(ctx, voice)
	if err != nil {
		return nil, err
	}

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }
	defer closeConn()
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		return nil, s.connectionErr(ctx, "failed to send text", err)
	}
	if err := conn.WriteJSON(controlMessage{Type: "Flush"}); err != nil {
		return nil, s.connectionErr(ctx, "failed to flush", err)
	}

	var data bytes.Buffer
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, s.connectionErr(ctx, "failed to read audio", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			data.Write(msg)
		case websocket.TextMessage:
			var parsedMsg serverMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				if err := conn.WriteJSON(controlMessage{Type: "Close"}); err != nil {
					logger.DebugContext(ctx, "failed to send close message", "error", err)
				}
				if data.Len() == 0 {
					return nil, texttospeech.NewSynthesisError(providerName, "", "", texttospeech.ErrEmptyAudio, true)
				}
				return data.Bytes(), nil
			case "Warning":
				logger.WarnContext(ctx, "deepgram warning", "code", parsedMsg.Code, "description", parsedMsg.Description)
			case "Error":
				return nil, texttospeech.NewSynthesisError(providerName, parsedMsg.Code, parsedMsg.Description, nil, false)
			}
		}
	}
}

func (s *Synthesizer) connect(ctx context.Context, voice deepgramVoice) (*websocket.Conn, error) {
	endpoint, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, texttospeech.NewSynthesisError(providerName, "", "invalid endpoint", err, false)
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", s.encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(s.encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")
	endpoint.RawQuery = urlValues.Encode()

	conn, resp, err := s.dialer.DialContext(ctx, endpoint.String(), http.Header{"Authorization": {"token " + s.apiKey}})
	if err != nil {
		if resp != nil {
			temporary := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
			return nil, texttospeech.NewSynthesisError(providerName, strconv.Itoa(resp.StatusCode), "failed to open websocket", err, temporary)
		}
		return nil, texttospeech.NewSynthesisError(providerName, "", "failed to open websocket", err, true)
	}
	return conn, nil
}

func (s *Synthesizer) connectionErr(ctx context.Context, message string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		err = io.ErrUnexpectedEOF
	}
	return texttospeech.NewSynthesisError(providerName, "", message, err, true)
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type controlMessage struct {
	Type string `json:"type"`
}

type serverMessage struct {
	Type        string `json:"type"`
	Code        string `json:"err_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
