package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koscakluka/ema-duet/core/llms"
	"github.com/koscakluka/ema-duet/core/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	responsesEndpoint  = "/responses"
	DefaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 200
	defaultTemperature = 0.8
)

// ErrRefused is returned when the model refuses to answer.
var ErrRefused = errors.New("model refused to answer")

// Client talks to the OpenAI responses API.
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

// GenerateTurn writes the next line of dialogue for req.
func (c *Client) GenerateTurn(ctx context.Context, req llms.TurnRequest) (llms.Generation, error) {
	instructions, input := llms.TurnPrompt(req)

	start := time.Now()
	response, err := c.Prompt(ctx, input,
		llms.WithInstructions(instructions),
		llms.WithTemperature(defaultTemperature),
		llms.WithMaxOutputTokens(defaultMaxTokens),
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

// Summarize compresses the recent history into an updated running summary.
func (c *Client) Summarize(ctx context.Context, req llms.SummaryRequest) (string, error) {
	instructions, input := llms.SummaryPrompt(req)

	response, err := c.Prompt(ctx, input,
		llms.WithInstructions(instructions),
		llms.WithTemperature(0),
		llms.WithMaxOutputTokens(defaultMaxTokens*2),
	)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Message, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	options := llms.NewPromptOptions(opts...)

	messages := toOpenAIMessages(options.Instructions, options.Messages)
	messages = append(messages, openAIMessage{
		Type:    messageTypeMessage,
		Role:    messageRoleUser,
		Content: prompt,
	})

	reqBody := requestBody{
		Model:           c.model,
		Input:           messages,
		Stream:          false,
		Temperature:     options.Temperature,
		MaxOutputTokens: options.MaxOutputTokens,
	}
	span.SetAttributes(attribute.String("request.model", c.model))

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error marshalling JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesEndpoint, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error creating HTTP request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error reading response body: %w", err))
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil, recordErr(span, retry.NewStatusError(resp, bodyBytes))
	}

	var responseBody generalResponseBody
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		return nil, recordErr(span, fmt.Errorf("error unmarshalling response body: %w", err))
	}

	response := llms.Message{Role: llms.MessageRoleAssistant}
	for _, output := range responseBody.Output {
		var outputType generalResponseBodyOutputType
		if err := json.Unmarshal(output, &outputType); err != nil {
			return nil, recordErr(span, fmt.Errorf("error unmarshalling output type: %w", err))
		}

		switch outputType.Type {
		case generalResponseBodyOutputTypeMessage:
			var outputMessage generalResponseBodyOutputMessage
			if err := json.Unmarshal(output, &outputMessage); err != nil {
				return nil, recordErr(span, fmt.Errorf("error unmarshalling output message: %w", err))
			}
			for _, content := range outputMessage.Content {
				var contentType generalResponseBodyOutputMessageType
				if err := json.Unmarshal(content, &contentType); err != nil {
					return nil, recordErr(span, fmt.Errorf("error unmarshalling output message content: %w", err))
				}
				switch contentType.Type {
				case "output_text":
					var outputText generalResponseBodyOutputMessageContentOutputText
					if err := json.Unmarshal(content, &outputText); err != nil {
						return nil, recordErr(span, fmt.Errorf("error unmarshalling output text: %w", err))
					}
					response.Content += outputText.Text
				case "refusal":
					var outputRefusal generalResponseBodyOutputMessageContentRefusal
					if err := json.Unmarshal(content, &outputRefusal); err != nil {
						return nil, recordErr(span, fmt.Errorf("error unmarshalling output refusal: %w", err))
					}
					logger.WarnContext(ctx, "model refused", "refusal", outputRefusal.Refusal)
					return nil, recordErr(span, fmt.Errorf("%w: %s", ErrRefused, outputRefusal.Refusal))
				}
			}

		case generalResponseBodyOutputTypeReasoning:
			// Reasoning items are not spoken.
		}
	}

	if responseBody.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input_tokens", responseBody.Usage.InputTokens),
			attribute.Int("usage.output_tokens", responseBody.Usage.OutputTokens),
		)
	}

	return &response, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type requestBody struct {
	Model           string          `json:"model"`
	Input           []openAIMessage `json:"input"`
	Stream          bool            `json:"stream"`
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
}

type generalResponseBody struct {
	Output []json.RawMessage   `json:"output"`
	Usage  *responseBodyUsage `json:"usage,omitempty"`
}

type generalResponseBodyOutputType struct {
	// Type is the type of the output item.
	Type generalResponseBodyOutputTypeType `json:"type"`
}

type generalResponseBodyOutputMessage struct {
	// ID is the unique ID of the output item.
	ID string `json:"id"`
	// Content is the content of the output message.
	Content []json.RawMessage `json:"content,omitempty"`
}

type generalResponseBodyOutputMessageType struct {
	// Type is the type of the output message. 'output_text' or 'refusal'.
	Type string `json:"type"`
}

// generalResponseBodyOutputMessageContentOutputText is text output from the
// model.
type generalResponseBodyOutputMessageContentOutputText struct {
	Text string `json:"text"`
}

// generalResponseBodyOutputMessageContentRefusal is a refusal from the model.
type generalResponseBodyOutputMessageContentRefusal struct {
	Refusal string `json:"refusal"`
}

type generalResponseBodyOutputTypeType string

const (
	generalResponseBodyOutputTypeMessage   generalResponseBodyOutputTypeType = "message"
	generalResponseBodyOutputTypeReasoning generalResponseBodyOutputTypeType = "reasoning"
)

// responseBodyUsage represents token usage details.
type responseBodyUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
