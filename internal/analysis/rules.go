package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/legal-assist-poc/server/internal/agent/model"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// LoadRiskRules reads the organizational risk policy. A missing file yields the defaults.
func LoadRiskRules(path string) (model.RiskRules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logx.Debug().Str("path", path).Msg("Risk rules file not found, using defaults")
			return model.DefaultRiskRules(), nil
		}
		return model.RiskRules{}, fmt.Errorf("read risk rules %s: %w", path, err)
	}

	rules := model.DefaultRiskRules()
	if err := json.Unmarshal(b, &rules); err != nil {
		return model.RiskRules{}, fmt.Errorf("parse risk rules %s: %w", path, err)
	}
	return rules, nil
}

// RulesFileLoader re-reads path on every job so policy edits apply without a restart.
func RulesFileLoader(path string) func(context.Context) (model.RiskRules, error) {
	return func(ctx context.Context) (model.RiskRules, error) {
		if err := ctx.Err(); err != nil {
			return model.RiskRules{}, err
		}
		return LoadRiskRules(path)
	}
}
