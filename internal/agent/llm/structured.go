package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned when a structured reply cannot be coerced into its schema.
var ErrSchemaViolation = errors.New("structured output violates schema")

// maxStructuredLen guards against pathological replies.
const maxStructuredLen = 256 * 1024

// Decode invokes the structured model and coerces its reply into T.
func Decode[T any](ctx context.Context, m *Models, input []*schema.Message, s *Schema) (T, error) {
	var zero T
	out, err := m.generateStructured(ctx, input, s)
	if err != nil {
		return zero, err
	}
	return Coerce[T](out.Content, s)
}

// Coerce repairs near-JSON, validates it against s and unmarshals it into T.
func Coerce[T any](content string, s *Schema) (T, error) {
	var result T

	raw := stripCodeFence(content)
	if raw == "" {
		return result, fmt.Errorf("%w: %s: empty reply", ErrSchemaViolation, s.Name)
	}
	if len(raw) > maxStructuredLen {
		return result, fmt.Errorf("%w: %s: reply too large", ErrSchemaViolation, s.Name)
	}

	if !json.Valid([]byte(raw)) {
		repaired, err := jsonrepair.JSONRepair(raw)
		if err != nil {
			return result, fmt.Errorf("%w: %s: repair: %v", ErrSchemaViolation, s.Name, err)
		}
		raw = repaired
	}

	res, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(s.JSONSchema()),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return result, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, s.Name, err)
	}
	if !res.Valid() {
		problems := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			problems = append(problems, e.String())
		}
		return result, fmt.Errorf("%w: %s: %s", ErrSchemaViolation, s.Name, strings.Join(problems, "; "))
	}

	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, s.Name, err)
	}
	return result, nil
}

// stripCodeFence removes a surrounding ```json fence some models add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
