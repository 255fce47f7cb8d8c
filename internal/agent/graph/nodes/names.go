package nodes

// Conversation graph nodes.
const (
	NodeEntry                 = "entry"
	NodeRouter                = "router"
	NodeAnswer                = "answer"
	NodeGenerateBriefing      = "generate_briefing"
	NodeLawyerFeedbackRouter  = "lawyer_feedback_router"
	NodeApproveBriefing       = "approve_briefing"
	NodeProvideCorrections    = "provide_corrections"
	NodeContextualEnhancement = "contextual_enhancement"
)

// Contract analysis graph nodes.
const (
	NodeLoadRules       = "load_rules"
	NodeExtractClauses  = "extract_clauses"
	NodeAssessRisk      = "assess_risk"
	NodeRouteDecision   = "route_decision"
	NodeHumanReview     = "human_review"
	NodeGenerateSummary = "generate_summary"
)

// Graph labels used in logs and metrics.
const (
	GraphConversation = "conversation"
	GraphAnalysis     = "analysis"
)

// User-facing texts.
const (
	ApologyMessage = "I'm sorry, I ran into a problem while preparing your answer. Please try again in a moment."

	EscalationPlaceholder = "This query requires input from our legal counsel. I am preparing a summary for their review and will provide an update as soon as they respond."

	NoResponsePlaceholder = "I'm sorry, I don't have an answer for that yet. Could you rephrase your question?"
)
