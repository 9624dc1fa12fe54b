package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
	"go.uber.org/zap"
)

const (
	ollamaBaseURL      = "http://localhost:11434/v1"
	ollamaDefaultModel = "llama3.2"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty provider name disables narratives and returns nil.
func NewProvider(config Config, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config, logger)

	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = ollamaBaseURL
		}
		if config.APIKey == "" {
			// Ollama ignores the key but the client always sends one
			config.APIKey = "ollama"
		}
		return newCompatibleProvider("ollama", ollamaDefaultModel, config, logger), nil

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:  modelConfig.Provider,
		Model:     modelConfig.Model,
		APIKey:    modelConfig.APIKey,
		BaseURL:   modelConfig.BaseURL,
		Timeout:   modelConfig.Timeout,
		Strict:    modelConfig.Strict,
		MaxTokens: modelConfig.MaxTokens,
	}
}
