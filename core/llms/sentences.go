package llms

import (
	"regexp"
	"strings"
)

var sentencePattern = regexp.MustCompile(`[^.!?…]+(?:[.!?…]+|$)`)

// SplitSentences normalizes whitespace and splits text on terminal
// punctuation. A trailing fragment without punctuation counts as a sentence.
func SplitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var sentences []string
	for _, match := range sentencePattern.FindAllString(text, -1) {
		if sentence := strings.TrimSpace(match); sentence != "" && strings.Trim(sentence, ".!?… ") != "" {
			sentences = append(sentences, sentence)
		}
	}
	return sentences
}

func CountSentences(text string) int { return len(SplitSentences(text)) }

// LimitSentences keeps at most max sentences of text. A non-positive max
// only normalizes whitespace.
func LimitSentences(text string, max int) string {
	sentences := SplitSentences(text)
	if max > 0 && len(sentences) > max {
		sentences = sentences[:max]
	}
	return strings.Join(sentences, " ")
}
