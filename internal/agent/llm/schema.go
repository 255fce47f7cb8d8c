package llm

import (
	"strings"
	"sync"

	"google.golang.org/genai"
)

// Schema is a named response contract. Root is handed to Gemini as the
// constrained-decoding schema; the derived JSON Schema validates the reply.
type Schema struct {
	Name string
	Root *genai.Schema

	once       sync.Once
	jsonSchema map[string]any
}

// NewSchema declares a response contract.
func NewSchema(name string, root *genai.Schema) *Schema {
	return &Schema{Name: name, Root: root}
}

// JSONSchema returns the draft-04 compatible rendering of Root.
func (s *Schema) JSONSchema() map[string]any {
	s.once.Do(func() {
		s.jsonSchema = toJSONSchema(s.Root)
	})
	return s.jsonSchema
}

// EnumSchema is a string schema restricted to values.
func EnumSchema(description string, values ...string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeString,
		Description: description,
		Enum:        values,
	}
}

// StringSchema is a plain described string.
func StringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

// ObjectSchema builds an object whose properties are all required, in the given order.
func ObjectSchema(order []string, props map[string]*genai.Schema) *genai.Schema {
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         order,
		PropertyOrdering: order,
	}
}

func toJSONSchema(s *genai.Schema) map[string]any {
	out := map[string]any{}
	if s == nil {
		return out
	}
	if s.Type != "" {
		out["type"] = strings.ToLower(string(s.Type))
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = toJSONSchema(p)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = toJSONSchema(s.Items)
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	return out
}
