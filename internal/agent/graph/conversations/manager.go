package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/legal-assist-poc/server/internal/agent/model"
)

// SessionManager turns stored session data into a turn's ConversationState
// and writes the turn's changes back.
type SessionManager struct {
	repo        model.SessionRepository
	maxMessages int
}

// NewSessionManager keeps HistoryMaxTurns exchanges, a user message and a
// reply each, in the prompt window.
func NewSessionManager(repo model.SessionRepository, config model.ConversationConfig) *SessionManager {
	return &SessionManager{
		repo:        repo,
		maxMessages: config.HistoryMaxTurns * 2,
	}
}

// Begin builds the state for one inbound message. The returned length is the
// number of history messages that were already stored.
func (sm *SessionManager) Begin(ctx context.Context, in model.TurnInput) (model.ConversationState, int, error) {
	history, err := sm.repo.LoadHistory(ctx, in.SessionID)
	if err != nil {
		return model.ConversationState{}, 0, fmt.Errorf("load history: %w", err)
	}
	esc, err := sm.repo.LoadEscalation(ctx, in.SessionID)
	if err != nil {
		return model.ConversationState{}, 0, fmt.Errorf("load escalation: %w", err)
	}

	state := model.ConversationState{
		ConversationHistory: history.Messages,
		EscalatedQuestion:   esc.Question,
		PreparedBriefing:    esc.Briefing,
	}
	switch in.Actor {
	case model.ActorLawyer:
		state.LawyerMessage = strings.TrimSpace(in.Content)
	default:
		state.UserMessage = strings.TrimSpace(in.Content)
	}
	return state, len(history.Messages), nil
}

// Commit appends the messages added during the turn and stores or clears the
// pending escalation.
func (sm *SessionManager) Commit(ctx context.Context, sessionID string, stored int, out model.ConversationState) error {
	if stored < len(out.ConversationHistory) {
		if err := sm.repo.AddMessages(ctx, sessionID, out.ConversationHistory[stored:]...); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
	}
	esc := model.Escalation{}
	if out.AwaitingLawyer() {
		esc = model.Escalation{Question: out.EscalatedQuestion, Briefing: out.PreparedBriefing}
	}
	if err := sm.repo.SaveEscalation(ctx, sessionID, esc); err != nil {
		return fmt.Errorf("save escalation: %w", err)
	}
	return nil
}

// Window returns the most recent messages the prompts may see.
func (sm *SessionManager) Window(messages []*schema.Message) []*schema.Message {
	return trimTail(messages, sm.maxMessages)
}

// Transcript renders the recent history as "role: content" lines for classification prompts.
func (sm *SessionManager) Transcript(messages []*schema.Message) string {
	var b strings.Builder
	for _, msg := range sm.Window(messages) {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("user: " + msg.Content + "\n")
		case schema.Assistant:
			b.WriteString("assistant: " + msg.Content + "\n")
		}
	}
	if b.Len() == 0 {
		return "(no previous messages)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, limit int) []*schema.Message {
	if limit <= 0 || len(messages) <= limit {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-limit:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
