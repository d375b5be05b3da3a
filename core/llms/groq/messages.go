package groq

import (
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-duet/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(instructions string, history []llms.Message) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}

	var converted []message
	if err := copier.Copy(&converted, history); err != nil {
		logger.Warn("failed to copy history into request messages", "error", err)
		return messages
	}
	for _, msg := range converted {
		if msg.Content == "" {
			continue
		}
		messages = append(messages, msg)
	}

	return messages
}
