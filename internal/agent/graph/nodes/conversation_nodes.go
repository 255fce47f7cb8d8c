package nodes

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/legal-assist-poc/server/internal/agent/graph/conversations"
	"github.com/legal-assist-poc/server/internal/agent/graph/prompts"
	"github.com/legal-assist-poc/server/internal/agent/llm"
	"github.com/legal-assist-poc/server/internal/agent/model"
	"github.com/legal-assist-poc/server/internal/agent/notify"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// ConversationDeps is what the conversation nodes share. DocContext and
// EscalationRules are loaded once at startup.
type ConversationDeps struct {
	Models              *llm.Models
	Sessions            *conversations.SessionManager
	DocContext          string
	EscalationRules     string
	EscalationTerms     []string
	EnhancementMaxChars int

	escalation *keywordSet
}

// Validate checks the dependencies and compiles the escalation terms.
func (d *ConversationDeps) Validate() error {
	if d == nil {
		return fmt.Errorf("conversation deps are nil")
	}
	if err := d.Models.Validate(); err != nil {
		return err
	}
	if d.Sessions == nil {
		return fmt.Errorf("session manager is nil")
	}
	d.escalation = newKeywordSet(d.EscalationTerms)
	return nil
}

// NewEntryNode validates the single-actor invariant before routing.
func NewEntryNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		if err := s.Validate(); err != nil {
			return s, err
		}
		return s, nil
	})
}

// NewEntryCondition sends lawyer replies to the feedback router and everything else to the escalation router.
func NewEntryCondition() func(context.Context, model.ConversationState) (string, error) {
	return func(ctx context.Context, s model.ConversationState) (string, error) {
		if s.LawyerMessage != "" {
			return NodeLawyerFeedbackRouter, nil
		}
		return NodeRouter, nil
	}
}

// NewRouterNode classifies the user question. Configured escalation terms
// always escalate; when the model call fails they are the only signal.
func NewRouterNode(d *ConversationDeps) *compose.Lambda {
	fn := func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		outcome := outcomeOK
		decision, err := routeWithModel(ctx, d, s)
		if err != nil {
			outcome = outcomeDegraded
			logx.Warn().Err(err).Str("node", NodeRouter).Msg("Router model failed; using escalation terms")
			decision = model.DecisionAnswerDirectly
		}
		if decision != model.DecisionEscalateToLawyer && d.escalation.Match(s.UserMessage) {
			logx.Debug().Str("node", NodeRouter).Msg("Escalation term found in user message")
			decision = model.DecisionEscalateToLawyer
		}
		s.Decision = decision
		observe(GraphConversation, NodeRouter, outcome)

		msg := "Looking up the answer in the documents"
		if decision == model.DecisionEscalateToLawyer {
			msg = "Escalating to legal counsel"
		}
		notify.Send(ctx, notify.Status{Node: NodeRouter, Message: msg})
		return s, nil
	}
	return compose.InvokableLambda(fn)
}

func routeWithModel(ctx context.Context, d *ConversationDeps, s model.ConversationState) (model.Decision, error) {
	msgs, err := prompts.Router.Render(ctx, map[string]any{
		"escalation_rules": d.EscalationRules,
		"transcript":       d.Sessions.Transcript(s.ConversationHistory),
		"query":            s.UserMessage,
	}, nil)
	if err != nil {
		return "", err
	}
	out, err := llm.Decode[RouteDecision](ctx, d.Models, msgs, routeDecisionSchema)
	if err != nil {
		return "", err
	}
	return out.Decision, nil
}

// NewDecisionCondition routes on the escalation router's decision.
func NewDecisionCondition() func(context.Context, model.ConversationState) (string, error) {
	return func(ctx context.Context, s model.ConversationState) (string, error) {
		if s.Decision == model.DecisionEscalateToLawyer {
			return NodeGenerateBriefing, nil
		}
		return NodeAnswer, nil
	}
}

// NewAnswerNode answers from the document context and records both turns.
func NewAnswerNode(d *ConversationDeps) *compose.Lambda {
	fn := func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		outcome := outcomeOK
		reply, err := generate(ctx, d.Models, prompts.Answer, map[string]any{
			"doc_context": d.DocContext,
			"query":       s.UserMessage,
		}, d.Sessions.Window(s.ConversationHistory))
		if err != nil {
			outcome = outcomeDegraded
			logx.Error().Err(err).Str("node", NodeAnswer).Msg("Direct answer failed")
			reply = ApologyMessage
		}

		s.BaseResponse = reply
		s.ConversationHistory = appendHistory(s.ConversationHistory,
			schema.UserMessage(s.UserMessage),
			schema.AssistantMessage(reply, nil),
		)
		observe(GraphConversation, NodeAnswer, outcome)
		return s, nil
	}
	return compose.InvokableLambda(fn)
}

// NewBriefingNode prepares the lawyer memo and parks the question. The turn ends here.
func NewBriefingNode(d *ConversationDeps) *compose.Lambda {
	fn := func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		briefing, err := generate(ctx, d.Models, prompts.Briefing, map[string]any{
			"doc_context": d.DocContext,
			"query":       s.UserMessage,
		}, nil)
		if err != nil {
			logx.Error().Err(err).Str("node", NodeGenerateBriefing).Msg("Briefing failed; escalation dropped")
			s.EscalatedQuestion = ""
			s.PreparedBriefing = ""
			s.MessageToLawyer = ""
			s.ResponseToUser = ApologyMessage
			s.ConversationHistory = appendHistory(s.ConversationHistory,
				schema.UserMessage(s.UserMessage),
				schema.AssistantMessage(ApologyMessage, nil),
			)
			observe(GraphConversation, NodeGenerateBriefing, outcomeDegraded)
			return s, nil
		}

		s.PreparedBriefing = briefing
		s.EscalatedQuestion = s.UserMessage
		s.MessageToLawyer = briefing
		s.ResponseToUser = EscalationPlaceholder
		s.ConversationHistory = appendHistory(s.ConversationHistory,
			schema.UserMessage(s.UserMessage),
			schema.AssistantMessage(EscalationPlaceholder, nil),
		)
		observe(GraphConversation, NodeGenerateBriefing, outcomeOK)
		notify.Send(ctx, notify.Status{Node: NodeGenerateBriefing, Message: "Briefing sent to legal counsel"})
		return s, nil
	}
	return compose.InvokableLambda(fn)
}

// NewLawyerFeedbackRouterNode classifies the lawyer reply. Any correction
// keyword forces provide_corrections whatever the model said.
func NewLawyerFeedbackRouterNode(d *ConversationDeps) *compose.Lambda {
	fn := func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		outcome := outcomeOK
		var fb LawyerFeedback

		switch {
		case s.PreparedBriefing == "":
			// nothing to approve
			fb = LawyerFeedback{FeedbackType: model.FeedbackProvideCorrections, Suggestions: s.LawyerMessage}
		default:
			var err error
			fb, err = classifyFeedback(ctx, d, s)
			if err != nil {
				outcome = outcomeDegraded
				logx.Warn().Err(err).Str("node", NodeLawyerFeedbackRouter).Msg("Feedback model failed; using keywords")
				fb = keywordFeedback(s.LawyerMessage)
			}
		}

		if fb.FeedbackType != model.FeedbackProvideCorrections && wantsCorrection(s.LawyerMessage) {
			fb.FeedbackType = model.FeedbackProvideCorrections
			if fb.Suggestions == "" {
				fb.Suggestions = s.LawyerMessage
			}
		}

		s.LawyerFeedbackType = fb.FeedbackType
		s.LawyerSuggestions = strings.TrimSpace(fb.Suggestions)
		observe(GraphConversation, NodeLawyerFeedbackRouter, outcome)
		logx.Debug().Str("feedback_type", string(fb.FeedbackType)).Msg("Lawyer feedback classified")
		return s, nil
	}
	return compose.InvokableLambda(fn)
}

func classifyFeedback(ctx context.Context, d *ConversationDeps, s model.ConversationState) (LawyerFeedback, error) {
	msgs, err := prompts.Feedback.Render(ctx, map[string]any{
		"briefing":       s.PreparedBriefing,
		"lawyer_message": s.LawyerMessage,
	}, nil)
	if err != nil {
		return LawyerFeedback{}, err
	}
	return llm.Decode[LawyerFeedback](ctx, d.Models, msgs, lawyerFeedbackSchema)
}

// keywordFeedback approves only on a clear approval; anything else is a correction.
func keywordFeedback(reply string) LawyerFeedback {
	if clearApproval(reply) {
		return LawyerFeedback{FeedbackType: model.FeedbackApproveBriefing}
	}
	return LawyerFeedback{FeedbackType: model.FeedbackProvideCorrections, Suggestions: reply}
}

// NewFeedbackCondition routes on the lawyer feedback type.
func NewFeedbackCondition() func(context.Context, model.ConversationState) (string, error) {
	return func(ctx context.Context, s model.ConversationState) (string, error) {
		if s.LawyerFeedbackType == model.FeedbackApproveBriefing {
			return NodeApproveBriefing, nil
		}
		return NodeProvideCorrections, nil
	}
}

// NewApproveBriefingNode restyles the proposed answer already in the briefing.
func NewApproveBriefingNode(d *ConversationDeps) *compose.Lambda {
	fn := func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		outcome := outcomeOK
		reply, err := generate(ctx, d.Models, prompts.Approve, map[string]any{
			"briefing":    s.PreparedBriefing,
			"suggestions": s.LawyerSuggestions,
		}, nil)
		if err != nil {
			outcome = outcomeDegraded
			logx.Error().Err(err).Str("node", NodeApproveBriefing).Msg("Approval restyle failed; using proposed answer")
			reply = ExtractProposedAnswer(s.PreparedBriefing)
			if s.LawyerSuggestions != "" {
				reply += "\n\n" + s.LawyerSuggestions
			}
		}

		s.BaseResponse = reply
		s.ConversationHistory = appendHistory(s.ConversationHistory, schema.AssistantMessage(reply, nil))
		observe(GraphConversation, NodeApproveBriefing, outcome)
		return s, nil
	}
	return compose.InvokableLambda(fn)
}

// NewProvideCorrectionsNode turns the lawyer's guidance into the user answer.
func NewProvideCorrectionsNode(d *ConversationDeps) *compose.Lambda {
	fn := func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		outcome := outcomeOK
		reply, err := generate(ctx, d.Models, prompts.Corrections, map[string]any{
			"question":    s.EscalatedQuestion,
			"guidance":    s.LawyerMessage,
			"suggestions": s.LawyerSuggestions,
			"doc_context": d.DocContext,
		}, d.Sessions.Window(s.ConversationHistory))
		if err != nil {
			outcome = outcomeDegraded
			logx.Error().Err(err).Str("node", NodeProvideCorrections).Msg("Corrections synthesis failed; forwarding lawyer text")
			reply = s.LawyerMessage
		}

		s.BaseResponse = reply
		s.ConversationHistory = appendHistory(s.ConversationHistory, schema.AssistantMessage(reply, nil))
		observe(GraphConversation, NodeProvideCorrections, outcome)
		return s, nil
	}
	return compose.InvokableLambda(fn)
}

// NewContextualEnhancementNode may append one short detail to the base
// response. The base text itself is never rewritten. Escalation fields are
// cleared on every path so the session awaits the next user turn.
func NewContextualEnhancementNode(d *ConversationDeps) *compose.Lambda {
	fn := func(ctx context.Context, s model.ConversationState) (model.ConversationState, error) {
		outcome := outcomeOK
		base := s.BaseResponse
		query := s.EffectiveQuery()

		switch {
		case strings.TrimSpace(base) == "":
			s.ResponseToUser = NoResponsePlaceholder
		case strings.TrimSpace(query) == "":
			s.ResponseToUser = base
		default:
			s.ResponseToUser = base
			addition, err := generate(ctx, d.Models, prompts.Enhance, map[string]any{
				"doc_context": d.DocContext,
				"query":       query,
				"answer":      base,
				"sentinel":    prompts.NoEnhancement,
			}, nil)
			if err != nil {
				outcome = outcomeDegraded
				logx.Warn().Err(err).Str("node", NodeContextualEnhancement).Msg("Enhancement failed; keeping base response")
				break
			}
			if add := acceptAddition(addition, base, d.EnhancementMaxChars); add != "" {
				enhanced := base + "\n\n" + add
				s.ResponseToUser = enhanced
				s.ConversationHistory = replaceLastAssistant(s.ConversationHistory, base, enhanced)
			}
		}

		s.EscalatedQuestion = ""
		s.PreparedBriefing = ""
		s.BaseResponse = ""
		observe(GraphConversation, NodeContextualEnhancement, outcome)
		notify.Send(ctx, notify.Status{Node: NodeContextualEnhancement, Message: "Response ready"})
		return s, nil
	}
	return compose.InvokableLambda(fn)
}

// acceptAddition returns the addition to append, or "" when the model
// signalled no change or produced something that is not a short addition.
func acceptAddition(addition, base string, maxChars int) string {
	add := strings.TrimSpace(addition)
	switch {
	case add == "":
		return ""
	case strings.Contains(add, prompts.NoEnhancement):
		return ""
	case maxChars > 0 && utf8.RuneCountInString(add) > maxChars:
		return ""
	case strings.Contains(base, add):
		return ""
	}
	return add
}

func generate(ctx context.Context, m *llm.Models, tpl *prompts.Template, vars map[string]any, history []*schema.Message) (string, error) {
	msgs, err := tpl.Render(ctx, vars, history)
	if err != nil {
		return "", err
	}
	return m.Generate(ctx, msgs)
}
