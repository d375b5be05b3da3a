package orchestration

import "github.com/koscakluka/ema-duet/core/turns"

const (
	questionEvery = 3
	roundupEvery  = 6
)

const (
	directiveIntroA   = "Open the broadcast: greet the audience, name the topic and the format of the discussion."
	directiveIntroB   = "Start the discussion: state both positions briefly and pose the first real challenge."
	directiveQuestion = "End with a short question to your partner."
	directiveRoundup  = "Round up in a few words: what is best supported so far, what could change it, and what to look at next."
	directiveFinal    = "This is a final round: state where you stand today and why, without opening new subtopics."
	directiveClosing  = "This is your closing line: thank your partner and the audience and wrap up the discussion."
)

// directivesFor returns the extra rules for a slot. Closing turns only get
// the closing rule.
func directivesFor(cfg Config, slotID int, kind turns.Kind) []string {
	if kind == turns.KindClosing {
		return []string{directiveClosing}
	}

	var directives []string
	switch slotID {
	case 1:
		directives = append(directives, directiveIntroA)
	case 2:
		directives = append(directives, directiveIntroB)
	}
	if slotID%roundupEvery == 0 {
		directives = append(directives, directiveRoundup)
	}
	if slotID%questionEvery == 0 {
		directives = append(directives, directiveQuestion)
	}
	if slotID > cfg.closingAt() {
		directives = append(directives, directiveFinal)
	}
	return directives
}
