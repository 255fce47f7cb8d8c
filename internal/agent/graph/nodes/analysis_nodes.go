package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/legal-assist-poc/server/internal/agent/graph/prompts"
	"github.com/legal-assist-poc/server/internal/agent/llm"
	"github.com/legal-assist-poc/server/internal/agent/model"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// AnalysisStage is one step of the contract pipeline. Stages never return an
// error: failures are recorded on the state and the pipeline moves on.
type AnalysisStage func(ctx context.Context, s model.AnalysisState) model.AnalysisState

// RulesLoader returns the organizational risk policy.
type RulesLoader func(ctx context.Context) (model.RiskRules, error)

func failStage(s model.AnalysisState, node, prefix string, err error) model.AnalysisState {
	logx.Error().Err(err).Str("analysis_id", s.AnalysisID).Str("node", node).Msg(prefix)
	observe(GraphAnalysis, node, outcomeFailed)
	s.Fail(fmt.Sprintf("%s: %v", prefix, err))
	return s
}

func NewLoadRulesStage(load RulesLoader) AnalysisStage {
	return func(ctx context.Context, s model.AnalysisState) model.AnalysisState {
		rules, err := load(ctx)
		if err != nil {
			return failStage(s, NodeLoadRules, "Failed to load risk rules", err)
		}
		s.RiskRules = &rules
		s.CurrentStep = model.StepRulesLoaded
		observe(GraphAnalysis, NodeLoadRules, outcomeOK)
		return s
	}
}

func NewExtractClausesStage(m *llm.Models) AnalysisStage {
	return func(ctx context.Context, s model.AnalysisState) model.AnalysisState {
		if strings.TrimSpace(s.DocumentContent) == "" {
			return failStage(s, NodeExtractClauses, "Failed to extract clauses", fmt.Errorf("document has no text"))
		}
		msgs, err := prompts.Extract.Render(ctx, map[string]any{"document": s.DocumentContent}, nil)
		if err != nil {
			return failStage(s, NodeExtractClauses, "Failed to extract clauses", err)
		}
		clauses, err := llm.Decode[model.ExtractedClauses](ctx, m, msgs, extractedClausesSchema)
		if err != nil {
			return failStage(s, NodeExtractClauses, "Failed to extract clauses", err)
		}

		normalizeClauses(&clauses)
		s.ExtractedClauses = &clauses
		s.CurrentStep = model.StepClausesExtracted
		observe(GraphAnalysis, NodeExtractClauses, outcomeOK)
		return s
	}
}

// normalizeClauses reports absent clauses as ClauseNotSpecified.
func normalizeClauses(c *model.ExtractedClauses) {
	for _, f := range []*string{
		&c.TerminationClause, &c.IndemnityClause, &c.GoverningLaw,
		&c.LiabilityCaps, &c.ForceMajeure, &c.PaymentTerms,
	} {
		v := strings.TrimSpace(*f)
		switch strings.ToLower(strings.TrimSuffix(v, ".")) {
		case "", "not found", "not specified", "none", "n/a":
			v = model.ClauseNotSpecified
		}
		*f = v
	}
}

func NewAssessRiskStage(m *llm.Models) AnalysisStage {
	return func(ctx context.Context, s model.AnalysisState) model.AnalysisState {
		rules := model.DefaultRiskRules()
		if s.RiskRules != nil {
			rules = *s.RiskRules
		}
		clauses := model.ExtractedClauses{}
		if s.ExtractedClauses != nil {
			clauses = *s.ExtractedClauses
		}

		msgs, err := prompts.Assess.Render(ctx, map[string]any{
			"risk_rules": indentJSON(rules),
			"clauses":    indentJSON(clauses),
		}, nil)
		if err != nil {
			return failStage(s, NodeAssessRisk, "Failed to assess risk", err)
		}
		risk, err := llm.Decode[model.RiskAssessment](ctx, m, msgs, riskAssessmentSchema)
		if err != nil {
			return failStage(s, NodeAssessRisk, "Failed to assess risk", err)
		}

		risk.RiskScore = clampInt(risk.RiskScore, 1, 10)
		if risk.RedFlags == nil {
			risk.RedFlags = []string{}
		}
		s.RiskAssessment = &risk
		s.CurrentStep = model.StepRiskAssessed
		observe(GraphAnalysis, NodeAssessRisk, outcomeOK)
		return s
	}
}

// NewRouteDecisionStage marks medium and high risk contracts for review.
func NewRouteDecisionStage() AnalysisStage {
	return func(ctx context.Context, s model.AnalysisState) model.AnalysisState {
		overall := model.RiskLow
		if s.RiskAssessment != nil {
			overall = s.RiskAssessment.OverallRisk
		}
		s.ReviewRequired = overall == model.RiskMedium || overall == model.RiskHigh
		s.CurrentStep = model.StepRoutingComplete
		observe(GraphAnalysis, NodeRouteDecision, outcomeOK)
		return s
	}
}

// NewReviewCondition picks human_review or skips straight to the summary.
func NewReviewCondition() func(context.Context, model.AnalysisState) (string, error) {
	return func(ctx context.Context, s model.AnalysisState) (string, error) {
		if s.ReviewRequired {
			return NodeHumanReview, nil
		}
		return NodeGenerateSummary, nil
	}
}

// NewHumanReviewStage records the pending-review marker. It does not wait for a reviewer.
func NewHumanReviewStage() AnalysisStage {
	return func(ctx context.Context, s model.AnalysisState) model.AnalysisState {
		s.HumanFeedback = model.PendingReviewMarker
		s.CurrentStep = model.StepAwaitingReview
		observe(GraphAnalysis, NodeHumanReview, outcomeOK)
		return s
	}
}

func NewGenerateSummaryStage(m *llm.Models) AnalysisStage {
	return func(ctx context.Context, s model.AnalysisState) model.AnalysisState {
		filename := s.DocumentMetadata.Filename
		if filename == "" {
			filename = "Contract"
		}
		var clauses, risk any = map[string]any{}, map[string]any{}
		if s.ExtractedClauses != nil {
			clauses = s.ExtractedClauses
		}
		if s.RiskAssessment != nil {
			risk = s.RiskAssessment
		}

		summary, err := generate(ctx, m, prompts.Summary, map[string]any{
			"filename": filename,
			"clauses":  indentJSON(clauses),
			"risk":     indentJSON(risk),
		}, nil)
		if err != nil {
			return failStage(s, NodeGenerateSummary, "Failed to generate summary", err)
		}

		s.Summary = summary
		s.AnalysisComplete = true
		s.CurrentStep = model.StepComplete
		observe(GraphAnalysis, NodeGenerateSummary, outcomeOK)
		return s
	}
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
