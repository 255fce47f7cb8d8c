package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/legal-assist-poc/server/internal/agent/model"
	logx "github.com/legal-assist-poc/server/pkg/logger"
	"github.com/legal-assist-poc/server/pkg/metrics"
)

var ErrEmptyResponse = errors.New("llm returned an empty response")

// StructuredModel is a chat model whose reply is constrained to a declared schema.
type StructuredModel interface {
	GenerateStructured(ctx context.Context, input []*schema.Message, s *Schema) (*schema.Message, error)
}

// Models bundles the free-text and structured-output models used by graph nodes.
type Models struct {
	Response            einomodel.BaseChatModel
	ResponseModelName   string
	Classifier          StructuredModel
	ClassifierModelName string
	// Timeout bounds every call; zero means no deadline beyond the caller's.
	Timeout time.Duration
}

// Validate checks that both models are present.
func (m *Models) Validate() error {
	if m == nil || m.Response == nil || m.Classifier == nil {
		return fmt.Errorf("chat models are not properly initialized")
	}
	return nil
}

func (m *Models) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.Timeout)
}

// Generate runs a free-text completion and returns the trimmed reply.
func (m *Models) Generate(ctx context.Context, input []*schema.Message) (string, error) {
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	callCtx = callbacks.ReuseHandlers(callCtx, &callbacks.RunInfo{
		Name:      m.ResponseModelName,
		Type:      "Gemini",
		Component: components.ComponentOfChatModel,
	})

	start := time.Now()
	out, err := m.Response.Generate(callCtx, input)
	metrics.LLMLatency.WithLabelValues(m.ResponseModelName, "text").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(m.ResponseModelName, "text", "error").Inc()
		return "", fmt.Errorf("generate: %w", err)
	}
	metrics.LLMCalls.WithLabelValues(m.ResponseModelName, "text", "ok").Inc()
	recordUsage(ctx, m.ResponseModelName, out)

	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Content), nil
}

func (m *Models) generateStructured(ctx context.Context, input []*schema.Message, s *Schema) (*schema.Message, error) {
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	// the structured client is not an Eino component, so callbacks are raised here
	callCtx = callbacks.ReuseHandlers(callCtx, &callbacks.RunInfo{
		Name:      s.Name,
		Type:      m.ClassifierModelName,
		Component: components.ComponentOfChatModel,
	})
	callCtx = callbacks.OnStart(callCtx, &einomodel.CallbackInput{Messages: input})

	start := time.Now()
	out, err := m.Classifier.GenerateStructured(callCtx, input, s)
	metrics.LLMLatency.WithLabelValues(m.ClassifierModelName, "structured").Observe(time.Since(start).Seconds())
	if err != nil {
		callbacks.OnError(callCtx, err)
		metrics.LLMCalls.WithLabelValues(m.ClassifierModelName, "structured", "error").Inc()
		return nil, fmt.Errorf("generate %s: %w", s.Name, err)
	}
	callbacks.OnEnd(callCtx, &einomodel.CallbackOutput{Message: out})
	metrics.LLMCalls.WithLabelValues(m.ClassifierModelName, "structured", "ok").Inc()
	recordUsage(ctx, m.ClassifierModelName, out)
	if out == nil {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

// recordUsage prices the call, exports it and, when running inside a graph
// with TurnState, accumulates it into the turn.
func recordUsage(ctx context.Context, modelName string, out *schema.Message) {
	cost, ok := model.CostOf(modelName, out)
	if !ok {
		return
	}
	metrics.LLMCostUSD.WithLabelValues(modelName).Add(cost.Total)

	var sessionID string
	_ = compose.ProcessState(ctx, func(_ context.Context, state *model.TurnState) error {
		state.LLMCalls++
		state.TotalCostUSD += cost.Total
		sessionID = state.SessionID
		return nil
	})

	logx.Debug().
		Str("session_id", sessionID).
		Str("model", modelName).
		Int("prompt_tokens", cost.PromptTokens).
		Int("completion_tokens", cost.CompletionTokens).
		Int("total_tokens", cost.TotalTokens).
		Float64("total_cost_usd", cost.Total).
		Msg("LLM usage")
}
