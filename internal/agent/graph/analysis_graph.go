package graph

import (
	"context"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/legal-assist-poc/server/internal/agent/graph/nodes"
	"github.com/legal-assist-poc/server/internal/agent/graph/observers"
	"github.com/legal-assist-poc/server/internal/agent/llm"
	"github.com/legal-assist-poc/server/internal/agent/model"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// ProgressFunc is told the percentage reached after each pipeline stage.
type ProgressFunc func(analysisID, step string, percent int)

// AnalysisConfig holds everything needed to compose the contract analysis graph.
type AnalysisConfig struct {
	Models    *llm.Models
	LoadRules nodes.RulesLoader
	Progress  ProgressFunc
}

// AnalysisRunner executes the whole pipeline for one document.
type AnalysisRunner interface {
	Run(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error)
}

type analysisRunner struct {
	runnable  compose.Runnable[model.AnalysisState, model.AnalysisState]
	callbacks einocb.Handler
}

func (r *analysisRunner) Run(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error) {
	out, err := r.runnable.Invoke(ctx, s, compose.WithCallbacks(r.callbacks))
	if err != nil {
		return s, fmt.Errorf("run analysis graph: %w", err)
	}
	return out, nil
}

// stageProgress is the percentage reported once a stage has run.
var stageProgress = map[string]int{
	nodes.NodeLoadRules:       10,
	nodes.NodeExtractClauses:  30,
	nodes.NodeAssessRisk:      60,
	nodes.NodeRouteDecision:   70,
	nodes.NodeHumanReview:     80,
	nodes.NodeGenerateSummary: 100,
}

// BuildAnalysisGraph compiles load_rules → extract_clauses → assess_risk →
// route_decision → (human_review) → generate_summary.
func BuildAnalysisGraph(ctx context.Context, cfg AnalysisConfig) (AnalysisRunner, error) {
	if err := cfg.Models.Validate(); err != nil {
		return nil, err
	}
	if cfg.LoadRules == nil {
		return nil, fmt.Errorf("rules loader is nil")
	}

	g := compose.NewGraph[model.AnalysisState, model.AnalysisState]()

	stages := []struct {
		name  string
		stage nodes.AnalysisStage
	}{
		{nodes.NodeLoadRules, nodes.NewLoadRulesStage(cfg.LoadRules)},
		{nodes.NodeExtractClauses, nodes.NewExtractClausesStage(cfg.Models)},
		{nodes.NodeAssessRisk, nodes.NewAssessRiskStage(cfg.Models)},
		{nodes.NodeRouteDecision, nodes.NewRouteDecisionStage()},
		{nodes.NodeHumanReview, nodes.NewHumanReviewStage()},
		{nodes.NodeGenerateSummary, nodes.NewGenerateSummaryStage(cfg.Models)},
	}
	for _, st := range stages {
		lambda := compose.InvokableLambda(withProgress(st.name, st.stage, cfg.Progress))
		if err := g.AddLambdaNode(st.name, lambda, compose.WithNodeName(st.name)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", st.name, err)
		}
	}

	edges := [][2]string{
		{compose.START, nodes.NodeLoadRules},
		{nodes.NodeLoadRules, nodes.NodeExtractClauses},
		{nodes.NodeExtractClauses, nodes.NodeAssessRisk},
		{nodes.NodeAssessRisk, nodes.NodeRouteDecision},
		{nodes.NodeHumanReview, nodes.NodeGenerateSummary},
		{nodes.NodeGenerateSummary, compose.END},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", e[0], e[1], err)
		}
	}

	reviewBranch := compose.NewGraphBranch(nodes.NewReviewCondition(), map[string]bool{
		nodes.NodeHumanReview:     true,
		nodes.NodeGenerateSummary: true,
	})
	if err := g.AddBranch(nodes.NodeRouteDecision, reviewBranch); err != nil {
		return nil, fmt.Errorf("error adding review branch: %w", err)
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName(nodes.GraphAnalysis),
		compose.WithMaxRunSteps(10),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling analysis graph")
		return nil, fmt.Errorf("error compiling analysis graph: %w", err)
	}

	logx.Debug().Msg("Analysis graph built successfully")
	return &analysisRunner{runnable: runnable, callbacks: observers.NewAllCallbacks()}, nil
}

func withProgress(name string, stage nodes.AnalysisStage, progress ProgressFunc) func(context.Context, model.AnalysisState) (model.AnalysisState, error) {
	return func(ctx context.Context, s model.AnalysisState) (model.AnalysisState, error) {
		out := stage(ctx, s)
		if progress != nil {
			progress(out.AnalysisID, out.CurrentStep, stageProgress[name])
		}
		logx.Debug().
			Str("analysis_id", out.AnalysisID).
			Str("node", name).
			Str("current_step", out.CurrentStep).
			Msg("Analysis stage finished")
		return out, nil
	}
}
