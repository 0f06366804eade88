package llm

import (
	"context"
	"fmt"

	"github.com/smallnest/dialoggraph/log"
	"github.com/tmc/langchaingo/llms"
)

// ModelGenerator implements Generator on a langchaingo model.
type ModelGenerator struct {
	Model       llms.Model
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a JSON object response. Most OpenAI compatible
	// backends support it.
	JSONMode bool
	Logger   log.Logger
}

// NewModelGenerator returns a ModelGenerator with JSON mode enabled.
func NewModelGenerator(model llms.Model) *ModelGenerator {
	return &ModelGenerator{Model: model, JSONMode: true}
}

// Generate sends the system prompt and prompt as a two message chat and parses the reply.
func (g *ModelGenerator) Generate(ctx context.Context, prompt, systemPrompt string) (map[string]any, error) {
	logger := log.OrDefault(g.Logger)

	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	var opts []llms.CallOption
	if g.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	if g.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(g.Temperature))
	}
	if g.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.MaxTokens))
	}

	logger.Debug("llm request: %d prompt bytes, %d system bytes", len(prompt), len(systemPrompt))
	resp, err := g.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	content := resp.Choices[0].Content
	logger.Debug("llm response: %d bytes", len(content))
	return ParseObject(content)
}
