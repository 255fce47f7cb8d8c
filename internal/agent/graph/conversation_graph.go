package graph

import (
	"context"
	"fmt"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/legal-assist-poc/server/internal/agent/graph/conversations"
	"github.com/legal-assist-poc/server/internal/agent/graph/nodes"
	"github.com/legal-assist-poc/server/internal/agent/graph/observers"
	"github.com/legal-assist-poc/server/internal/agent/llm"
	"github.com/legal-assist-poc/server/internal/agent/model"
	errx "github.com/legal-assist-poc/server/internal/core/error"
	logx "github.com/legal-assist-poc/server/pkg/logger"
	"github.com/legal-assist-poc/server/pkg/metrics"
)

// Runner executes one conversation turn for a session.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (model.TurnResult, error)
}

// Config holds everything needed to compose the conversation graph end-to-end.
type Config struct {
	Models          *llm.Models
	Sessions        model.SessionRepository
	DocContext      string
	EscalationRules string
	Conversation    model.ConversationConfig
}

// ConversationGraphBuilder handles the construction of the conversation graph.
type ConversationGraphBuilder struct {
	deps  *nodes.ConversationDeps
	graph *compose.Graph[model.ConversationState, model.ConversationState]
}

type conversationRunner struct {
	runnable  compose.Runnable[model.ConversationState, model.ConversationState]
	sessions  *conversations.SessionManager
	callbacks einocb.Handler
}

type sessionIDKey struct{}

func (r *conversationRunner) Invoke(ctx context.Context, in model.TurnInput) (model.TurnResult, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return model.TurnResult{}, errx.Validation(fmt.Errorf("session id is required"))
	}

	state, stored, err := r.sessions.Begin(ctx, in)
	if err != nil {
		return model.TurnResult{}, err
	}
	if err := state.Validate(); err != nil {
		return model.TurnResult{}, errx.Validation(err)
	}
	metrics.ConversationTurns.WithLabelValues(string(in.Actor)).Inc()

	ctx = context.WithValue(ctx, sessionIDKey{}, in.SessionID)
	out, err := r.runnable.Invoke(ctx, state, compose.WithCallbacks(r.callbacks))
	if err != nil {
		return model.TurnResult{}, fmt.Errorf("run conversation graph: %w", err)
	}

	if err := r.sessions.Commit(ctx, in.SessionID, stored, out); err != nil {
		// the answer is still delivered; the next turn sees the previous session state
		logx.Error().Err(err).Str("session_id", in.SessionID).Msg("Failed to persist conversation turn")
	}

	return model.TurnResult{
		ResponseToUser:  out.ResponseToUser,
		MessageToLawyer: out.MessageToLawyer,
		Decision:        out.Decision,
		FeedbackType:    out.LawyerFeedbackType,
		AwaitingLawyer:  out.AwaitingLawyer(),
	}, nil
}

// BuildConversationGraph wires the session manager and nodes, compiles the graph and returns a Runner.
func BuildConversationGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session repository is nil")
	}
	sessions := conversations.NewSessionManager(cfg.Sessions, cfg.Conversation)

	deps := &nodes.ConversationDeps{
		Models:              cfg.Models,
		Sessions:            sessions,
		DocContext:          cfg.DocContext,
		EscalationRules:     cfg.EscalationRules,
		EscalationTerms:     cfg.Conversation.EscalationTermList(),
		EnhancementMaxChars: cfg.Conversation.Enhancement.MaxChars,
	}
	if err := deps.Validate(); err != nil {
		return nil, err
	}

	builder := &ConversationGraphBuilder{
		deps: deps,
		graph: compose.NewGraph[model.ConversationState, model.ConversationState](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				id, _ := ctx.Value(sessionIDKey{}).(string)
				return &model.TurnState{SessionID: id}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Conversation graph built successfully")
	return &conversationRunner{
		runnable:  runnable,
		sessions:  sessions,
		callbacks: observers.NewAllCallbacks(),
	}, nil
}

// addNodes adds all processing nodes to the graph
func (b *ConversationGraphBuilder) addNodes() error {
	turnEnd := compose.WithStatePostHandler(newTurnEndPostHandler())

	add := []struct {
		name   string
		lambda *compose.Lambda
		opts   []compose.GraphAddNodeOpt
	}{
		{nodes.NodeEntry, nodes.NewEntryNode(), nil},
		{nodes.NodeRouter, nodes.NewRouterNode(b.deps), nil},
		{nodes.NodeAnswer, nodes.NewAnswerNode(b.deps), nil},
		{nodes.NodeGenerateBriefing, nodes.NewBriefingNode(b.deps), []compose.GraphAddNodeOpt{turnEnd}},
		{nodes.NodeLawyerFeedbackRouter, nodes.NewLawyerFeedbackRouterNode(b.deps), nil},
		{nodes.NodeApproveBriefing, nodes.NewApproveBriefingNode(b.deps), nil},
		{nodes.NodeProvideCorrections, nodes.NewProvideCorrectionsNode(b.deps), nil},
		{nodes.NodeContextualEnhancement, nodes.NewContextualEnhancementNode(b.deps), []compose.GraphAddNodeOpt{turnEnd}},
	}
	for _, n := range add {
		opts := append([]compose.GraphAddNodeOpt{compose.WithNodeName(n.name)}, n.opts...)
		if err := b.graph.AddLambdaNode(n.name, n.lambda, opts...); err != nil {
			return fmt.Errorf("add node %s: %w", n.name, err)
		}
	}
	return nil
}

// addEdges creates the unconditional connections between nodes
func (b *ConversationGraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeEntry},
		{nodes.NodeAnswer, nodes.NodeContextualEnhancement},
		{nodes.NodeApproveBriefing, nodes.NodeContextualEnhancement},
		{nodes.NodeProvideCorrections, nodes.NodeContextualEnhancement},
		{nodes.NodeGenerateBriefing, compose.END},
		{nodes.NodeContextualEnhancement, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *ConversationGraphBuilder) addBranches() error {
	branches := []struct {
		from   string
		branch *compose.GraphBranch
	}{
		{nodes.NodeEntry, compose.NewGraphBranch(nodes.NewEntryCondition(), map[string]bool{
			nodes.NodeRouter:               true,
			nodes.NodeLawyerFeedbackRouter: true,
		})},
		{nodes.NodeRouter, compose.NewGraphBranch(nodes.NewDecisionCondition(), map[string]bool{
			nodes.NodeAnswer:           true,
			nodes.NodeGenerateBriefing: true,
		})},
		{nodes.NodeLawyerFeedbackRouter, compose.NewGraphBranch(nodes.NewFeedbackCondition(), map[string]bool{
			nodes.NodeApproveBriefing:    true,
			nodes.NodeProvideCorrections: true,
		})},
	}
	for _, br := range branches {
		if err := b.graph.AddBranch(br.from, br.branch); err != nil {
			logx.Error().Err(err).Str("from", br.from).Msg("Error adding branch")
			return fmt.Errorf("error adding branch after %s: %w", br.from, err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *ConversationGraphBuilder) compile(ctx context.Context) (compose.Runnable[model.ConversationState, model.ConversationState], error) {
	// the longest path visits five nodes
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName(nodes.GraphConversation),
		compose.WithMaxRunSteps(10),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// newTurnEndPostHandler logs the accumulated LLM usage when a turn finishes.
func newTurnEndPostHandler() func(context.Context, model.ConversationState, *model.TurnState) (model.ConversationState, error) {
	return func(ctx context.Context, out model.ConversationState, state *model.TurnState) (model.ConversationState, error) {
		logx.Info().
			Str("session_id", state.SessionID).
			Str("decision", string(out.Decision)).
			Str("feedback_type", string(out.LawyerFeedbackType)).
			Int("llm_calls", state.LLMCalls).
			Float64("total_cost_usd", state.TotalCostUSD).
			Msg("Conversation turn finished")
		return out, nil
	}
}
