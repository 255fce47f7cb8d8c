package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/legal-assist-poc/server/internal/agent/llm"
	"github.com/legal-assist-poc/server/internal/agent/model"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	LLM        model.LLMConfig
	Response   *model.ResponseModelConfig
	Classifier *model.ClassifierModelConfig
}

// NewChatModels creates the free-text and structured-output models sharing one Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*llm.Models, error) {
	if config.Response == nil || config.Classifier == nil {
		return nil, fmt.Errorf("model configs are nil")
	}

	var timeout time.Duration
	if config.LLM.Timeout != "" {
		d, err := time.ParseDuration(config.LLM.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_TIMEOUT %q: %w", config.LLM.Timeout, err)
		}
		timeout = d
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.LLM.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.LLM.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.LLM.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModelResponse, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Response.Model,
		Temperature: &config.Response.Temperature,
		MaxTokens:   &config.Response.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Response model")
		return nil, fmt.Errorf("error creating Response model: %w", err)
	}

	classifier := llm.NewGeminiStructuredModel(client, config.Classifier.Model,
		config.Classifier.Temperature, config.Classifier.MaxTokens)

	logx.Debug().
		Str("response_model", config.Response.Model).
		Str("classifier_model", config.Classifier.Model).
		Dur("timeout", timeout).
		Msg("Chat models created")

	return &llm.Models{
		Response:            chatModelResponse,
		ResponseModelName:   config.Response.Model,
		Classifier:          classifier,
		ClassifierModelName: config.Classifier.Model,
		Timeout:             timeout,
	}, nil
}
