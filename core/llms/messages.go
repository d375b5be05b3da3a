package llms

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single chat message sent to or received from a model.
type Message struct {
	Role    MessageRole
	Content string
}

// HistoryEntry is one committed line of the dialogue as the models see it.
type HistoryEntry struct {
	TurnID  int
	Speaker string
	Text    string
}
