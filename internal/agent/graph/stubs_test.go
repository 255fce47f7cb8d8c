package graph

import (
	"context"
	"errors"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/legal-assist-poc/server/internal/agent/llm"
)

var errUnavailable = errors.New("model unavailable")

// promptKind names the prompt by the opening of its system message.
func promptKind(msgs []*schema.Message) string {
	if len(msgs) == 0 || msgs[0] == nil {
		return ""
	}
	sys := msgs[0].Content
	kinds := []struct{ marker, kind string }{
		{"Answer the user's question using ONLY", "answer"},
		{"skilled paralegal", "briefing"},
		{"A lawyer approved the proposed answer", "approve"},
		{"A human lawyer reviewed", "corrections"},
		{"You review an answer", "enhance"},
		{"summary of this contract analysis", "summary"},
	}
	for _, k := range kinds {
		if strings.Contains(sys, k.marker) {
			return k.kind
		}
	}
	return "unknown"
}

// scriptedChat answers free-text prompts from a per-kind script.
type scriptedChat struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]bool
	calls   []string
}

func newScriptedChat(replies map[string]string) *scriptedChat {
	return &scriptedChat{replies: replies, fail: map[string]bool{}}
}

func (c *scriptedChat) Generate(_ context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	kind := promptKind(in)
	c.mu.Lock()
	c.calls = append(c.calls, kind)
	fail := c.fail[kind] || c.fail["*"]
	reply := c.replies[kind]
	c.mu.Unlock()

	if fail {
		return nil, errUnavailable
	}
	out := schema.AssistantMessage(reply, nil)
	out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}}
	return out, nil
}

func (c *scriptedChat) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := c.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (c *scriptedChat) called(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.calls {
		if k == kind {
			return true
		}
	}
	return false
}

// scriptedStructured returns canned JSON per schema name.
type scriptedStructured struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]bool
}

func newScriptedStructured(replies map[string]string) *scriptedStructured {
	return &scriptedStructured{replies: replies, fail: map[string]bool{}}
}

func (s *scriptedStructured) GenerateStructured(_ context.Context, _ []*schema.Message, sc *llm.Schema) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[sc.Name] || s.fail["*"] {
		return nil, errUnavailable
	}
	return schema.AssistantMessage(s.replies[sc.Name], nil), nil
}

func (s *scriptedStructured) set(name, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[name] = reply
}

func newTestModels(chat *scriptedChat, structured *scriptedStructured) *llm.Models {
	return &llm.Models{
		Response:            chat,
		ResponseModelName:   "gemini-2.5-flash",
		Classifier:          structured,
		ClassifierModelName: "gemini-2.5-flash-lite",
	}
}
