package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// LoadKnowledgeBase concatenates every supported file in dir, each under a
// "--- Document: <name> ---" header. A missing directory yields an empty context.
func LoadKnowledgeBase(ctx context.Context, source *LocalFileSource, dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logx.Warn().Str("path", dir).Msg("Knowledge base path does not exist")
			return "", nil
		}
		return "", fmt.Errorf("read knowledge base %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() || !source.Supports(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		doc, err := source.Load(ctx, path)
		if err != nil {
			return "", fmt.Errorf("load knowledge document %s: %w", e.Name(), err)
		}
		logx.Info().Str("document", e.Name()).Int("chars", len(doc.Content)).Msg("Loaded knowledge document")
		fmt.Fprintf(&b, "\n\n--- Document: %s ---\n\n%s", e.Name(), doc.Content)
	}
	return strings.TrimSpace(b.String()), nil
}

// LoadEscalationRules reads the escalation rules text. A missing file yields "".
func LoadEscalationRules(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logx.Warn().Str("path", path).Msg("Escalation rules file does not exist")
			return "", nil
		}
		return "", fmt.Errorf("read escalation rules %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}
