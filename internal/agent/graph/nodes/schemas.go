package nodes

import (
	"google.golang.org/genai"

	"github.com/legal-assist-poc/server/internal/agent/llm"
	"github.com/legal-assist-poc/server/internal/agent/model"
)

// RouteDecision is the escalation router's structured reply.
type RouteDecision struct {
	Decision model.Decision `json:"decision"`
}

// LawyerFeedback is the feedback router's structured reply.
type LawyerFeedback struct {
	FeedbackType model.FeedbackType `json:"feedback_type"`
	Suggestions  string             `json:"suggestions"`
}

var routeDecisionSchema = llm.NewSchema("route_decision", llm.ObjectSchema(
	[]string{"decision"},
	map[string]*genai.Schema{
		"decision": llm.EnumSchema("Answer the user directly or escalate to a human lawyer.",
			string(model.DecisionAnswerDirectly), string(model.DecisionEscalateToLawyer)),
	},
))

var lawyerFeedbackSchema = llm.NewSchema("lawyer_feedback", llm.ObjectSchema(
	[]string{"feedback_type", "suggestions"},
	map[string]*genai.Schema{
		"feedback_type": llm.EnumSchema("Classification of the lawyer's reply.",
			string(model.FeedbackApproveBriefing), string(model.FeedbackProvideCorrections)),
		"suggestions": llm.StringSchema("Corrections or additions from the lawyer, verbatim. Empty when none."),
	},
))

var extractedClausesSchema = llm.NewSchema("extracted_clauses", llm.ObjectSchema(
	[]string{"termination_clause", "indemnity_clause", "governing_law", "liability_caps", "force_majeure", "payment_terms"},
	map[string]*genai.Schema{
		"termination_clause": llm.StringSchema("Termination clause text, notice period and conditions."),
		"indemnity_clause":   llm.StringSchema("Indemnity clause text."),
		"governing_law":      llm.StringSchema("Governing law jurisdiction."),
		"liability_caps":     llm.StringSchema("Liability limitation clause."),
		"force_majeure":      llm.StringSchema("Force majeure clause."),
		"payment_terms":      llm.StringSchema("Payment terms."),
	},
))

func riskLevelSchema(description string) *genai.Schema {
	return llm.EnumSchema(description, string(model.RiskLow), string(model.RiskMedium), string(model.RiskHigh))
}

var riskAssessmentSchema = llm.NewSchema("risk_assessment", llm.ObjectSchema(
	[]string{"termination_risk", "indemnity_risk", "governing_law_risk", "liability_risk", "overall_risk", "risk_score", "red_flags"},
	map[string]*genai.Schema{
		"termination_risk":   riskLevelSchema("Risk level for termination terms."),
		"indemnity_risk":     riskLevelSchema("Risk level for indemnity terms."),
		"governing_law_risk": riskLevelSchema("Risk level for governing law."),
		"liability_risk":     riskLevelSchema("Risk level for liability terms."),
		"overall_risk":       riskLevelSchema("Overall contract risk level."),
		"risk_score":         {Type: genai.TypeInteger, Description: "Numerical risk score from 1 to 10."},
		"red_flags": {
			Type:        genai.TypeArray,
			Description: "Specific red flags found in the contract.",
			Items:       llm.StringSchema("One red flag."),
		},
	},
))
