package events

// KindTopicChanged identifies effective topic changes.
const KindTopicChanged Kind = "topic.changed"

type TopicChanged struct {
	Base
	Previous string
	Value    string
	Source   string
}

func NewTopicChanged(previous, value, source string) TopicChanged {
	return TopicChanged{Base: NewBase(KindTopicChanged), Previous: previous, Value: value, Source: source}
}
