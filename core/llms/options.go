package llms

// PromptOptions holds the knobs shared by every provider.
type PromptOptions struct {
	Instructions    string
	Messages        []Message
	Temperature     *float64
	MaxOutputTokens *int
	// Stream receives text deltas as they arrive. Returning false stops
	// generation early, keeping what was received so far.
	Stream func(delta string, soFar string) bool
}

type PromptOption func(*PromptOptions)

func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) { o.Instructions = instructions }
}

func WithMessages(messages ...Message) PromptOption {
	return func(o *PromptOptions) { o.Messages = append(o.Messages, messages...) }
}

func WithTemperature(temperature float64) PromptOption {
	return func(o *PromptOptions) { o.Temperature = &temperature }
}

func WithMaxOutputTokens(tokens int) PromptOption {
	return func(o *PromptOptions) { o.MaxOutputTokens = &tokens }
}

func WithStream(stream func(delta string, soFar string) bool) PromptOption {
	return func(o *PromptOptions) { o.Stream = stream }
}

func NewPromptOptions(opts ...PromptOption) PromptOptions {
	options := PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
