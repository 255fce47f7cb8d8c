package nodes

import (
	"github.com/cloudwego/eino/schema"

	"github.com/legal-assist-poc/server/pkg/metrics"
)

const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeFailed   = "failed"
)

// ===== Small helpers to keep nodes simple/readable =====

// appendHistory returns a new slice so the caller's backing array is never shared.
func appendHistory(history []*schema.Message, msgs ...*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history)+len(msgs))
	out = append(out, history...)
	return append(out, msgs...)
}

// replaceLastAssistant swaps the newest assistant message whose content is
// old for one carrying updated. History is returned unchanged when none matches.
func replaceLastAssistant(history []*schema.Message, old, updated string) []*schema.Message {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m == nil || m.Role != schema.Assistant {
			continue
		}
		if m.Content != old {
			return history
		}
		out := make([]*schema.Message, len(history))
		copy(out, history)
		out[i] = schema.AssistantMessage(updated, nil)
		return out
	}
	return history
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func observe(graph, node, outcome string) {
	metrics.NodeExecutions.WithLabelValues(graph, node, outcome).Inc()
}
