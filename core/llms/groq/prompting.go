package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-duet/core/llms"
	"github.com/koscakluka/ema-duet/core/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL      = "https://api.groq.com/openai/v1"
	chatCompletionsPath = "/chat/completions"
	DefaultModel        = "llama-3.3-70b-versatile"
	defaultMaxTokens    = 200
	defaultTemperature  = 0.8
	summaryMaxTokens    = 400
	summaryTemperature  = 0.0

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

var earlyStops, _ = meter.Int64Counter("groq.stream.early_stops",
	metric.WithDescription("Streams stopped once the sentence limit was reached"))

// Client talks to Groq's OpenAI compatible chat completions API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(apiKey string, model string, opts ...ClientOption) *Client {
	if model == "" {
		model = DefaultModel
	}

	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string { return c.model }

// GenerateTurn streams the next line and stops reading as soon as the
// sentence limit has been passed.
func (c *Client) GenerateTurn(ctx context.Context, req llms.TurnRequest) (llms.Generation, error) {
	instructions, input := llms.TurnPrompt(req)

	start := time.Now()
	response, err := c.Stream(ctx, input,
		llms.WithInstructions(instructions),
		llms.WithTemperature(defaultTemperature),
		llms.WithMaxOutputTokens(defaultMaxTokens),
		llms.WithStream(func(_ string, soFar string) bool {
			if req.MaxSentences > 0 && llms.CountSentences(soFar) > req.MaxSentences {
				earlyStops.Add(ctx, 1)
				return false
			}
			return true
		}),
	)
	if err != nil {
		return llms.Generation{}, err
	}

	return llms.Generation{
		Text:    response.Content,
		Model:   c.model,
		Latency: time.Since(start),
	}, nil
}

type summaryOutput struct {
	Summary string `json:"summary" jsonschema:"description=Compressed summary of the discussion without new facts"`
}

// Summarize asks for a structured summary so stray commentary never leaks
// into the running summary.
func (c *Client) Summarize(ctx context.Context, req llms.SummaryRequest) (string, error) {
	instructions, input := llms.SummaryPrompt(req)

	output, err := PromptJSONSchema[summaryOutput](ctx, c, input,
		llms.WithInstructions(instructions),
		llms.WithTemperature(summaryTemperature),
		llms.WithMaxOutputTokens(summaryMaxTokens),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output.Summary), nil
}

// Stream sends a streaming chat completion request and assembles the deltas.
func (c *Client) Stream(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Message, error) {
	ctx, span := tracer.Start(ctx, "stream llm")
	defer span.End()

	options := llms.NewPromptOptions(opts...)

	messages := toMessages(options.Instructions, options.Messages)
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: prompt,
	})

	reqBody := requestBody{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxOutputTokens,
	}
	span.SetAttributes(attribute.String("request.model", c.model))

	resp, err := c.post(ctx, span, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

		if len(chunk) == 0 {
			continue
		}

		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal stream chunk", "error", err)
			continue
		}
		if len(responseBody.Choices) == 0 {
			continue
		}

		content := responseBody.Choices[0].Delta.Content
		response.WriteString(content)
		if options.Stream != nil && !options.Stream(content, response.String()) {
			span.AddEvent("stream stopped early")
			break
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return nil, recordErr(span, fmt.Errorf("error reading streamed response: %w", err))
	}
	if ctx.Err() != nil {
		return nil, recordErr(span, ctx.Err())
	}

	return &llms.Message{
		Role:    llms.MessageRoleAssistant,
		Content: response.String(),
	}, nil
}

func (c *Client) post(ctx context.Context, span trace.Span, body any) (*http.Response, error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error marshalling JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error creating HTTP request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(attribute.String("request.url", req.URL.String()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error sending request: %w", err))
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			span.RecordError(fmt.Errorf("error reading error body: %w", readErr))
		}
		return nil, recordErr(span, retry.NewStatusError(resp, errorBody))
	}

	return resp, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_completion_tokens,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}
