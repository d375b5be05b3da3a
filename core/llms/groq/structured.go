package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-duet/core/llms"
	"go.opentelemetry.io/otel/attribute"
)

// PromptJSONSchema asks the model for output matching the JSON schema
// reflected from T.
func PromptJSONSchema[T any](
	ctx context.Context,
	c *Client,
	prompt string,
	opts ...llms.PromptOption,
) (*T, error) {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()

	options := llms.NewPromptOptions(opts...)

	messages := toMessages(options.Instructions, options.Messages)
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: prompt,
	})

	// TODO: Implement a custom reflector that only satisfies the subset of
	// jsonschema used by groq
	reflector := jsonschema.Reflector{DoNotReference: true}
	outputType := reflect.TypeFor[T]()
	if outputType.Kind() == reflect.Ptr {
		outputType = outputType.Elem()
	}
	schema := reflector.ReflectFromType(outputType)

	reqBody := schemaRequestBody{
		Model:       c.model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxOutputTokens,
		ResponseFormat: &ChatResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   outputType.Name(),
				Schema: *schema,
				Strict: true,
			},
		},
	}

	span.SetAttributes(attribute.String("request.model", c.model))
	schemaString, _ := schema.MarshalJSON()
	span.SetAttributes(attribute.String("request.schema", string(schemaString)))

	resp, err := c.post(ctx, span, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("error reading response body: %w", err))
	}

	var responseBody schemaResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		return nil, recordErr(span, fmt.Errorf("error unmarshalling response body: %w", err))
	}
	if len(responseBody.Choices) == 0 {
		return nil, recordErr(span, fmt.Errorf("response contained no choices"))
	}

	content := responseBody.Choices[0].Message.Content
	if split := strings.Split(content, "```"); len(split) > 2 {
		content = strings.TrimPrefix(split[1], "json")
	}

	var output T
	if err := json.Unmarshal([]byte(content), &output); err != nil {
		return nil, recordErr(span, fmt.Errorf("error unmarshalling response: %w", err))
	}

	return &output, nil
}

type schemaRequestBody struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	Temperature    *float64            `json:"temperature,omitempty"`
	MaxTokens      *int                `json:"max_completion_tokens,omitempty"`
	ResponseFormat *ChatResponseFormat `json:"response_format,omitempty"`
}

type ChatResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	// Name is the name of the chat completion response format json
	// schema.
	//
	// it is used to further identify the schema in the response.
	Name string `json:"name"`
	// Description is the description of the chat completion
	// response format json schema.
	Description string `json:"description,omitempty"`
	// Schema is the schema of the chat completion response format
	// json schema.
	Schema jsonschema.Schema `json:"schema"`
	// Strict determines whether to enforce the schema upon the
	// generated content.
	Strict bool `json:"strict"`
}

type schemaResponseBody struct {
	Choices []struct {
		Message struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}
