package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type SessionRepository interface {
	// AddMessages appends messages to the conversation history of a session
	AddMessages(ctx context.Context, sessionID string, messages ...*schema.Message) error

	// LoadHistory retrieves the conversation history for a session
	LoadHistory(ctx context.Context, sessionID string) (*ConversationHistory, error)

	// SaveEscalation stores the pending escalation; an empty Escalation removes it
	SaveEscalation(ctx context.Context, sessionID string, escalation Escalation) error

	// LoadEscalation returns the pending escalation, or the zero value when none exists
	LoadEscalation(ctx context.Context, sessionID string) (Escalation, error)

	// ClearSession removes every stored trace of a session
	ClearSession(ctx context.Context, sessionID string) error
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	SessionID string
	Messages  []*schema.Message
}

// Escalation is the part of a session that survives between the briefing turn
// and the lawyer's reply.
type Escalation struct {
	Question string `json:"escalated_question"`
	Briefing string `json:"prepared_briefing"`
}

// IsZero reports whether no escalation is pending.
func (e Escalation) IsZero() bool {
	return e.Question == "" && e.Briefing == ""
}
