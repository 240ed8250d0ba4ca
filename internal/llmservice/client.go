// Package llmservice calls the external text-generation model.
package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

// Generator produces answers from prompts via an Ollama-hosted model.
// There is no streaming and no automatic retry; a timeout surfaces as an
// error the caller may retry.
type Generator struct {
	llm     llms.Model
	cfg     *config.LLMConfig
	timeout time.Duration
}

func NewGenerator(llmCfg *config.LLMConfig) (*Generator, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(llmCfg.BaseURL),
		ollama.WithModel(llmCfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("llmservice: init ollama client: %w", err)
	}
	return &Generator{
		llm:     llm,
		cfg:     llmCfg,
		timeout: time.Duration(llmCfg.TimeoutSecs) * time.Second,
	}, nil
}

// Generate runs one generation call and returns the text trimmed of
// surrounding whitespace.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	log.Debug().Str("model", g.cfg.Model).Int("prompt_len", len(prompt)).Msg("generating answer")

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: models.SystemPrompt}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	opts := g.cfg.Options
	res, err := g.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(opts.Temperature),
		llms.WithMaxTokens(opts.MaxTokens),
		llms.WithTopK(opts.TopK),
		llms.WithTopP(opts.TopP),
		llms.WithRepetitionPenalty(opts.RepeatPenalty),
	)
	if err != nil {
		return "", fmt.Errorf("llmservice: generation backend: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("llmservice: generation backend returned no choices")
	}
	return strings.TrimSpace(res.Choices[0].Content), nil
}
