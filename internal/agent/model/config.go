package model

import (
	"errors"
	"strings"
)

// ================ Config ================
type ConversationConfig struct {
	TTL             string `envconfig:"CONVERSATION_TTL" default:"2h"`
	Store           string `envconfig:"CONVERSATION_STORE" default:"memory"`
	HistoryMaxTurns int    `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"20"`
	EscalationTerms string `envconfig:"CONVERSATION_ESCALATION_TERMS" default:"indemnity, indemnification, liability, lawsuit, litigation, breach, dispute, damages, settlement, arbitration"`
	Enhancement     struct {
		MaxChars int `envconfig:"CONVERSATION_ENHANCEMENT_MAX_CHARS" default:"400"`
	}
	Status struct {
		Buffer int `envconfig:"CONVERSATION_STATUS_BUFFER" default:"8"`
	}
}

// EscalationTermList splits the configured comma separated trigger terms.
func (c ConversationConfig) EscalationTermList() []string {
	return SplitList(c.EscalationTerms)
}

type LLMConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
	Timeout string `envconfig:"LLM_TIMEOUT" default:"60s"`
}

var (
	ErrMissingAPIKey     = errors.New("GEMINI_API_KEY must be set")
	ErrPlaceholderAPIKey = errors.New("GEMINI_API_KEY is still set to a placeholder value")
)

var placeholderKeys = []string{
	"your_api_key_here",
	"your_gemini_api_key_here",
	"your_google_api_key_here",
	"your_actual_google_api_key_here",
	"changeme",
}

// Validate rejects empty and placeholder API keys. The second return is true
// when the key is suspiciously short but still usable.
func (c LLMConfig) Validate() (bool, error) {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return false, ErrMissingAPIKey
	}
	for _, p := range placeholderKeys {
		if strings.EqualFold(key, p) {
			return false, ErrPlaceholderAPIKey
		}
	}
	return len(key) < 30, nil
}

// ResponseModelConfig drives the free-text model used for answers, briefings and summaries.
type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2048"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.2"`
}

// ClassifierModelConfig drives the structured-output model used for routing and extraction.
type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"2048"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.1"`
}

type KnowledgeConfig struct {
	BasePath            string `envconfig:"KNOWLEDGE_BASE_PATH" default:"knowledge_base"`
	EscalationRulesFile string `envconfig:"ESCALATION_RULES_FILE" default:"config/escalation_rules.txt"`
}

type AnalysisConfig struct {
	Store         string `envconfig:"ANALYSIS_STORE" default:"local"`
	StoragePath   string `envconfig:"ANALYSIS_STORAGE_PATH" default:"data"`
	RiskRulesFile string `envconfig:"ANALYSIS_RISK_RULES_FILE" default:"config/risk-rules.json"`
	UploadDir     string `envconfig:"ANALYSIS_UPLOAD_DIR" default:"uploads"`
	MaxUploadMB   int64  `envconfig:"ANALYSIS_MAX_UPLOAD_MB" default:"10"`
}

type ServerConfig struct {
	Addr           string `envconfig:"SERVER_ADDR" default:":8000"`
	AllowedOrigins string `envconfig:"SERVER_ALLOWED_ORIGINS" default:"*"`
	ShutdownGrace  string `envconfig:"SERVER_SHUTDOWN_GRACE" default:"15s"`
}

// OriginList splits the configured allowed websocket origins.
func (c ServerConfig) OriginList() []string {
	return SplitList(c.AllowedOrigins)
}

// SplitList turns "a, b ,c" into a trimmed, lower-cased slice without empties.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
