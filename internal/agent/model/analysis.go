package model

import "time"

// RiskLevel is the three-step scale used for clauses and whole contracts.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ClauseNotSpecified is recorded for clauses absent from the contract.
const ClauseNotSpecified = "Not specified"

// Analysis pipeline steps reported through CurrentStep.
const (
	StepQueued           = "queued"
	StepRulesLoaded      = "rules_loaded"
	StepClausesExtracted = "clauses_extracted"
	StepRiskAssessed     = "risk_assessed"
	StepRoutingComplete  = "routing_complete"
	StepAwaitingReview   = "awaiting_review"
	StepComplete         = "complete"
	StepError            = "error"
)

// PendingReviewMarker is the human-review placeholder recorded for risky contracts.
const PendingReviewMarker = "Pending legal team review"

type DocumentMetadata struct {
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	SourcePath string `json:"source_path,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Paragraphs int    `json:"paragraphs,omitempty"`
	Characters int    `json:"characters,omitempty"`
}

type RiskRules struct {
	TerminationRules struct {
		MinNoticeDays int `json:"min_notice_days"`
	} `json:"termination_rules"`
	GoverningLawRules struct {
		ApprovedJurisdictions []string `json:"approved_jurisdictions"`
	} `json:"governing_law_rules"`
	LiabilityRules struct {
		MaxLiabilityMultiplier float64 `json:"max_liability_multiplier"`
	} `json:"liability_rules"`
}

// DefaultRiskRules is the organizational policy used when no rules file exists.
func DefaultRiskRules() RiskRules {
	var r RiskRules
	r.TerminationRules.MinNoticeDays = 60
	r.GoverningLawRules.ApprovedJurisdictions = []string{"New York", "Delaware", "California"}
	r.LiabilityRules.MaxLiabilityMultiplier = 5.0
	return r
}

type ExtractedClauses struct {
	TerminationClause string `json:"termination_clause"`
	IndemnityClause   string `json:"indemnity_clause"`
	GoverningLaw      string `json:"governing_law"`
	LiabilityCaps     string `json:"liability_caps"`
	ForceMajeure      string `json:"force_majeure"`
	PaymentTerms      string `json:"payment_terms"`
}

type RiskAssessment struct {
	TerminationRisk  RiskLevel `json:"termination_risk"`
	IndemnityRisk    RiskLevel `json:"indemnity_risk"`
	GoverningLawRisk RiskLevel `json:"governing_law_risk"`
	LiabilityRisk    RiskLevel `json:"liability_risk"`
	OverallRisk      RiskLevel `json:"overall_risk"`
	RiskScore        int       `json:"risk_score"`
	RedFlags         []string  `json:"red_flags"`
}

// AnalysisState is the per-job record threaded through the contract analysis graph.
type AnalysisState struct {
	AnalysisID       string
	DocumentContent  string
	DocumentMetadata DocumentMetadata

	RiskRules        *RiskRules
	ExtractedClauses *ExtractedClauses
	RiskAssessment   *RiskAssessment
	ReviewRequired   bool
	HumanFeedback    string

	Summary          string
	AnalysisComplete bool

	// Error keeps the first failure; later stages still run.
	Error       string
	CurrentStep string
}

// Fail records a stage failure, keeping the first error message.
func (s *AnalysisState) Fail(msg string) {
	if s.Error == "" {
		s.Error = msg
	}
	s.CurrentStep = StepError
}

// AnalysisRecord is the persisted form of a finished analysis.
type AnalysisRecord struct {
	AnalysisID       string            `json:"analysis_id"`
	SavedAt          time.Time         `json:"saved_at"`
	DocumentMetadata DocumentMetadata  `json:"document_metadata"`
	ExtractedClauses *ExtractedClauses `json:"extracted_clauses,omitempty"`
	RiskAssessment   *RiskAssessment   `json:"risk_assessment,omitempty"`
	ReviewRequired   bool              `json:"review_required"`
	HumanFeedback    string            `json:"human_feedback,omitempty"`
	Summary          string            `json:"summary,omitempty"`
	AnalysisComplete bool              `json:"analysis_complete"`
	Error            string            `json:"error,omitempty"`
	CurrentStep      string            `json:"current_step"`
}

// OverallRisk returns the record's overall risk or "" when no assessment exists.
func (r *AnalysisRecord) OverallRisk() RiskLevel {
	if r == nil || r.RiskAssessment == nil {
		return ""
	}
	return r.RiskAssessment.OverallRisk
}

// RecordFromState converts a finished pipeline state into its persisted form.
func RecordFromState(s AnalysisState) *AnalysisRecord {
	return &AnalysisRecord{
		AnalysisID:       s.AnalysisID,
		DocumentMetadata: s.DocumentMetadata,
		ExtractedClauses: s.ExtractedClauses,
		RiskAssessment:   s.RiskAssessment,
		ReviewRequired:   s.ReviewRequired,
		HumanFeedback:    s.HumanFeedback,
		Summary:          s.Summary,
		AnalysisComplete: s.AnalysisComplete,
		Error:            s.Error,
		CurrentStep:      s.CurrentStep,
	}
}
