package model

import (
	"errors"

	"github.com/cloudwego/eino/schema"
)

// Decision is the escalation router's verdict for a user question.
type Decision string

const (
	DecisionAnswerDirectly   Decision = "answer_directly"
	DecisionEscalateToLawyer Decision = "escalate_to_lawyer"
)

// FeedbackType classifies the lawyer's reply to a briefing.
type FeedbackType string

const (
	FeedbackApproveBriefing    FeedbackType = "approve_briefing"
	FeedbackProvideCorrections FeedbackType = "provide_corrections"
)

// ConversationState is the per-turn record threaded through the conversation graph.
// Empty strings mean "not set". Nodes receive it by value and return the updated copy.
type ConversationState struct {
	ConversationHistory []*schema.Message

	// Exactly one of these is set per invocation.
	UserMessage   string
	LawyerMessage string

	Decision Decision

	// Set together while the session awaits the lawyer.
	EscalatedQuestion string
	PreparedBriefing  string

	LawyerFeedbackType FeedbackType
	LawyerSuggestions  string

	BaseResponse    string
	ResponseToUser  string
	MessageToLawyer string
}

var (
	ErrNoTurnInput        = errors.New("turn has neither a user nor a lawyer message")
	ErrAmbiguousTurnInput = errors.New("turn has both a user and a lawyer message")
)

// Validate checks the single-actor invariant of a turn.
func (s ConversationState) Validate() error {
	switch {
	case s.UserMessage != "" && s.LawyerMessage != "":
		return ErrAmbiguousTurnInput
	case s.UserMessage == "" && s.LawyerMessage == "":
		return ErrNoTurnInput
	}
	return nil
}

// AwaitingLawyer reports whether a briefing is pending a lawyer reply.
func (s ConversationState) AwaitingLawyer() bool {
	return s.EscalatedQuestion != "" && s.PreparedBriefing != ""
}

// EffectiveQuery is the question the current response answers.
func (s ConversationState) EffectiveQuery() string {
	if s.UserMessage != "" {
		return s.UserMessage
	}
	return s.EscalatedQuestion
}

// TurnState stores per-invocation bookkeeping for the Eino graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - Read and written only through compose.ProcessState or state handlers,
//     which Eino serializes, so no mutex is needed.
type TurnState struct {
	SessionID    string
	LLMCalls     int
	TotalCostUSD float64
}

// Actor identifies who sent the inbound message of a turn.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorLawyer Actor = "lawyer"
)

// TurnInput is one inbound message for a session.
type TurnInput struct {
	SessionID string `json:"session_id"`
	Actor     Actor  `json:"actor"`
	Content   string `json:"content"`
}

// TurnResult is what the transport needs to answer a turn.
type TurnResult struct {
	ResponseToUser  string
	MessageToLawyer string
	Decision        Decision
	FeedbackType    FeedbackType
	AwaitingLawyer  bool
}
