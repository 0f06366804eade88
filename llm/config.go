package llm

import (
	"fmt"

	"github.com/smallnest/dialoggraph/log"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// Provider names accepted by New.
const (
	ProviderLangChain = "langchain"
	ProviderOpenAI    = "openai"
)

// Config describes one model endpoint.
type Config struct {
	Provider    string  `json:"provider" yaml:"provider"`
	APIKey      string  `json:"-" yaml:"-"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`

	Logger log.Logger `json:"-" yaml:"-"`
}

// New builds the Generator selected by cfg.Provider. An empty provider means langchain.
func New(cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required for model %q", cfg.Model)
	}

	switch cfg.Provider {
	case "", ProviderLangChain:
		opts := []lcopenai.Option{
			lcopenai.WithToken(cfg.APIKey),
			lcopenai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
		}
		model, err := lcopenai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: create langchain model: %w", err)
		}
		return &ModelGenerator{
			Model:       model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			JSONMode:    true,
			Logger:      cfg.Logger,
		}, nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg, nil), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
