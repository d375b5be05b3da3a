package openai

import "github.com/koscakluka/ema-duet/core/llms"

type openAIMessage struct {
	Type messageType `json:"type"`

	Role    messageRole `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`
}

type messageRole string

const (
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type messageType string

const messageTypeMessage messageType = "message"

func toOpenAIMessages(instructions string, history []llms.Message) []openAIMessage {
	messages := []openAIMessage{}
	if instructions != "" {
		messages = append(messages, openAIMessage{
			Role:    messageRoleDeveloper,
			Type:    messageTypeMessage,
			Content: instructions,
		})
	}

	for _, message := range history {
		if message.Content == "" {
			continue
		}

		role := messageRoleUser
		switch message.Role {
		case llms.MessageRoleAssistant:
			role = messageRoleAssistant
		case llms.MessageRoleSystem:
			role = messageRoleDeveloper
		}

		messages = append(messages, openAIMessage{
			Type:    messageTypeMessage,
			Role:    role,
			Content: message.Content,
		})
	}

	return messages
}
