// Package embedding adapts an Ollama-hosted embedding model to the rest of
// the pipeline. Failures degrade to the zero vector instead of aborting a
// batch; callers that need strict correctness inspect Outcome.Degraded.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"document-chat/internal/config"
)

// Outcome is the tagged result of embedding one text. Degraded outcomes
// carry the zero vector of the configured dimension and the failure reason,
// so degraded entries stay queryable for diagnostics.
type Outcome struct {
	Vector   []float32
	Degraded bool
	Reason   string
}

type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Gateway is the embedding service adapter.
type Gateway struct {
	embedder  queryEmbedder
	dimension int
	timeout   time.Duration
	baseURL   string
	model     string
	client    *http.Client
}

// NewOllamaGateway builds a gateway over the Ollama embeddings API.
func NewOllamaGateway(llmCfg *config.LLMConfig, dimension int) (*Gateway, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(llmCfg.BaseURL),
		ollama.WithModel(llmCfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding: init ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("embedding: create embedder: %w", err)
	}

	timeout := time.Duration(llmCfg.TimeoutSecs) * time.Second
	return &Gateway{
		embedder:  embedder,
		dimension: dimension,
		timeout:   timeout,
		baseURL:   llmCfg.BaseURL,
		model:     llmCfg.Model,
		client:    &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (g *Gateway) Dimension() int { return g.dimension }

func (g *Gateway) Model() string { return g.model }

// Embed returns the vector for one text. Any failure (unreachable backend,
// timeout, malformed response) yields the zero vector, tagged as degraded.
func (g *Gateway) Embed(ctx context.Context, text string) Outcome {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	vector, err := g.embedder.EmbedQuery(callCtx, text)
	if err != nil {
		log.Warn().Err(err).Msg("embedding failed, substituting zero vector")
		return Outcome{
			Vector:   make([]float32, g.dimension),
			Degraded: true,
			Reason:   err.Error(),
		}
	}
	return Outcome{Vector: vector}
}

// EmbedBatch embeds texts serially, order-preserving and one-to-one with
// the input. Per-item failures degrade; the batch never aborts.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) []Outcome {
	outcomes := make([]Outcome, len(texts))
	for i, text := range texts {
		if i%10 == 0 {
			log.Debug().Int("done", i).Int("total", len(texts)).Msg("embedding progress")
		}
		outcomes[i] = g.Embed(ctx, text)
	}
	return outcomes
}

// CheckHealth lists the models installed on the Ollama host. It is a
// readiness signal only; an error here means the backend is unreachable.
func (g *Gateway) CheckHealth(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: backend status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("embedding: decode tags: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}
