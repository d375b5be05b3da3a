package orchestration

import (
	"fmt"
	"slices"
	"time"

	"github.com/koscakluka/ema-duet/core/llms"
	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/koscakluka/ema-duet/core/turns"
)

// ConversationSnapshot is an immutable copy of the conversation handed to
// productions and summaries.
type ConversationSnapshot struct {
	History   []llms.HistoryEntry
	Summary   string
	TurnCount int
	Topic     topic.State
}

// conversationState is owned by the control loop. Nothing else mutates it.
type conversationState struct {
	window int

	history        []llms.HistoryEntry
	summary        string
	summaryTurn    int
	turnCount      int
	lastCommitted  int
	topic          topic.State
	topicUpdatedAt time.Time
}

func newConversationState(window int) *conversationState {
	return &conversationState{window: window}
}

func (c *conversationState) Snapshot() ConversationSnapshot {
	return ConversationSnapshot{
		History:   slices.Clone(c.history),
		Summary:   c.summary,
		TurnCount: c.turnCount,
		Topic:     c.topic,
	}
}

// commit appends a finished turn. Commits must arrive in increasing turn id
// order and each id only once. Bridging turns count toward the budget but
// stay out of the history the models see.
func (c *conversationState) commit(turn *turns.Turn) error {
	if turn.ID <= c.lastCommitted {
		return fmt.Errorf("%w: turn %d after turn %d", ErrOutOfOrder, turn.ID, c.lastCommitted)
	}

	c.lastCommitted = turn.ID
	c.turnCount++

	if turn.IsBridging() {
		return nil
	}

	c.history = append(c.history, llms.HistoryEntry{
		TurnID:  turn.ID,
		Speaker: string(turn.Speaker),
		Text:    turn.Text,
	})
	if c.window > 0 && len(c.history) > c.window {
		c.history = slices.Clone(c.history[len(c.history)-c.window:])
	}
	return nil
}

// summaryDue reports whether every turns have been committed since the last
// refresh.
func (c *conversationState) summaryDue(every int) bool {
	return every > 0 && c.turnCount > 0 && c.turnCount-c.summaryTurn >= every
}

// applySummary stores a summary produced for turnCount. Results for a turn
// count that was already summarized, or that is older, are ignored, so
// repeating a refresh without new turns leaves the summary unchanged.
func (c *conversationState) applySummary(turnCount int, summary string) bool {
	if turnCount <= c.summaryTurn || summary == "" {
		return false
	}
	c.summary = summary
	c.summaryTurn = turnCount
	return true
}

// setTopic reports whether the effective topic changed.
func (c *conversationState) setTopic(state topic.State, now time.Time) bool {
	if state.Value == c.topic.Value && state.Source == c.topic.Source {
		return false
	}
	c.topic = state
	c.topicUpdatedAt = now
	return true
}
