package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// GeminiStructuredModel asks Gemini for application/json constrained by a response schema.
type GeminiStructuredModel struct {
	client      *genai.Client
	model       string
	temperature *float32
	maxTokens   int32
}

// NewGeminiStructuredModel wraps an existing genai client.
func NewGeminiStructuredModel(client *genai.Client, modelName string, temperature float32, maxTokens int) *GeminiStructuredModel {
	return &GeminiStructuredModel{
		client:      client,
		model:       modelName,
		temperature: genai.Ptr(temperature),
		maxTokens:   int32(maxTokens),
	}
}

func (g *GeminiStructuredModel) GenerateStructured(ctx context.Context, input []*schema.Message, s *Schema) (*schema.Message, error) {
	if s == nil || s.Root == nil {
		return nil, fmt.Errorf("response schema is nil")
	}
	system, contents := toGenaiContents(input)
	if len(contents) == 0 {
		return nil, fmt.Errorf("no user content to send")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       g.temperature,
		MaxOutputTokens:   g.maxTokens,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    s.Root,
	})
	if err != nil {
		return nil, err
	}

	out := schema.AssistantMessage(resp.Text(), nil)
	if u := resp.UsageMetadata; u != nil {
		out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}}
	}
	return out, nil
}

// toGenaiContents folds system messages into one instruction and maps the
// remaining roles onto Gemini's user/model turns.
func toGenaiContents(input []*schema.Message) (*genai.Content, []*genai.Content) {
	var sys []string
	contents := make([]*genai.Content, 0, len(input))
	for _, m := range input {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case schema.System:
			sys = append(sys, m.Content)
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(sys) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: []*genai.Part{{Text: strings.Join(sys, "\n\n")}}}, contents
}

var _ StructuredModel = (*GeminiStructuredModel)(nil)
