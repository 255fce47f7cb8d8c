package prompts

import (
	"context"
	"embed"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/*.txt
var templateFS embed.FS

// NoEnhancement is the reply the enhancement prompt asks for when nothing should be added.
const NoEnhancement = "NO_ENHANCEMENT"

const historyKey = "history"

// Template pairs an embedded system prompt with a user turn, optionally
// separated by the conversation history.
type Template struct {
	Name string
	tpl  prompt.ChatTemplate
}

func newTemplate(name, userTemplate string, withHistory bool) *Template {
	b, err := templateFS.ReadFile("template/" + name + ".txt")
	if err != nil {
		panic(fmt.Sprintf("prompts: missing template %s: %v", name, err))
	}

	msgs := []schema.MessagesTemplate{schema.SystemMessage(string(b))}
	if withHistory {
		msgs = append(msgs, schema.MessagesPlaceholder(historyKey, true))
	}
	msgs = append(msgs, schema.UserMessage(userTemplate))

	return &Template{
		Name: name,
		tpl:  prompt.FromMessages(schema.GoTemplate, msgs...),
	}
}

// Render formats the template through the Eino prompt component so prompt
// callbacks fire. history is ignored by templates declared without it.
func (t *Template) Render(ctx context.Context, vars map[string]any, history []*schema.Message) ([]*schema.Message, error) {
	values := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		values[k] = v
	}
	if history == nil {
		history = []*schema.Message{}
	}
	values[historyKey] = history

	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      t.Name,
		Type:      "GoTemplate",
		Component: components.ComponentOfPrompt,
	})
	msgs, err := t.tpl.Format(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", t.Name, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s prompt render: empty result", t.Name)
	}
	return msgs, nil
}

var (
	Router      = newTemplate("router", "Conversation history:\n{{.transcript}}\n\nUser query: {{.query}}", false)
	Answer      = newTemplate("answer", "{{.query}}", true)
	Briefing    = newTemplate("briefing", "User query: {{.query}}", false)
	Feedback    = newTemplate("feedback", "Lawyer reply:\n{{.lawyer_message}}", false)
	Approve     = newTemplate("approve", "Lawyer addenda: {{if .suggestions}}{{.suggestions}}{{else}}none{{end}}", false)
	Corrections = newTemplate("corrections", "Here is the lawyer's guidance. Formulate the final response based on it:\n\n---\n{{.guidance}}\n---", true)
	Enhance     = newTemplate("enhance", "Question: {{.query}}\n\nAnswer:\n{{.answer}}", false)

	Extract = newTemplate("extract", "Contract text:\n{{.document}}", false)
	Assess  = newTemplate("assess", "Extracted clauses:\n{{.clauses}}", false)
	Summary = newTemplate("summary", "Document: {{.filename}}\n\nExtracted clauses:\n{{.clauses}}\n\nRisk assessment:\n{{.risk}}", false)
)
