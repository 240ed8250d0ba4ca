// Package rag composes the chunker, embedding gateway, vector store and
// generation client into the two externally triggered operations of the
// system: full-replace ingestion and question answering.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"document-chat/internal/chunker"
	"document-chat/internal/config"
	"document-chat/internal/embedding"
	"document-chat/internal/models"
)

// Embedder is the embedding gateway consumed by the pipeline.
type Embedder interface {
	Embed(ctx context.Context, text string) embedding.Outcome
	EmbedBatch(ctx context.Context, texts []string) []embedding.Outcome
	Dimension() int
}

// Generator produces the final answer text from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pipeline holds the current store snapshot behind a read/write lock.
// Ingestion builds a complete replacement store and swaps the reference,
// so in-flight answers keep ranking against the snapshot they acquired.
type Pipeline struct {
	embed Embedder
	gen   Generator
	cfg   *config.Config

	mu       sync.RWMutex
	store    Store
	newStore func(ctx context.Context) (Store, error)
}

// New creates a pipeline. newStore builds a fresh empty store for each
// full-replace ingestion.
func New(embed Embedder, gen Generator, store Store, newStore func(ctx context.Context) (Store, error), cfg *config.Config) *Pipeline {
	return &Pipeline{
		embed:    embed,
		gen:      gen,
		cfg:      cfg,
		store:    store,
		newStore: newStore,
	}
}

func (p *Pipeline) current() Store {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store
}

func (p *Pipeline) swap(s Store) {
	p.mu.Lock()
	p.store = s
	p.mu.Unlock()
}

// IngestReplace chunks, embeds and indexes the given documents into a new
// store, discarding the previous corpus entirely. Ingestion is always a
// full replacement, never an incremental merge; the corpus is assumed
// small enough to re-embed each time. Per-document failures become
// warnings; the batch only fails on store or persistence errors.
func (p *Pipeline) IngestReplace(ctx context.Context, docs map[string]string) (*models.IngestReport, error) {
	next, err := p.newStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: create store: %w", err)
	}

	sources := make([]string, 0, len(docs))
	for source := range docs {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	report := &models.IngestReport{}
	for _, source := range sources {
		cleaned := chunker.Clean(docs[source])
		chunks := chunker.Chunk(cleaned, p.cfg.RAG.ChunkSize, p.cfg.RAG.ChunkOverlap)
		if len(chunks) == 0 {
			report.Warnings = append(report.Warnings, source+": no text could be extracted")
			log.Warn().Str("source", source).Msg("document produced no chunks")
			continue
		}

		log.Info().Str("source", source).Int("chunks", len(chunks)).Msg("vectorizing document")
		outcomes := p.embed.EmbedBatch(ctx, chunks)

		vectors := make([][]float32, len(outcomes))
		meta := make([]models.ChunkMeta, len(outcomes))
		degraded := 0
		for i, outcome := range outcomes {
			vectors[i] = outcome.Vector
			if outcome.Degraded {
				degraded++
			}
			meta[i] = models.ChunkMeta{
				Text:          chunks[i],
				Source:        source,
				SequenceIndex: i,
			}
		}
		if degraded > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s: %d of %d chunks fell back to the zero vector", source, degraded, len(chunks)))
		}

		if err := next.Add(ctx, vectors, meta); err != nil {
			return nil, fmt.Errorf("rag: add %s: %w", source, err)
		}

		report.DocumentsProcessed++
		report.TotalChunks += len(chunks)
		report.Files = append(report.Files, source)
	}

	if err := next.Persist(ctx); err != nil {
		return nil, fmt.Errorf("rag: persist store: %w", err)
	}
	p.swap(next)

	log.Info().
		Int("documents", report.DocumentsProcessed).
		Int("chunks", report.TotalChunks).
		Int("warnings", len(report.Warnings)).
		Msg("ingestion complete")
	return report, nil
}

// Answer retrieves the most relevant chunks for the query and conditions
// one generation call on them. An empty store or an empty retrieval are
// answerable states with reason codes, not errors; only backend failures
// surface as errors.
func (p *Pipeline) Answer(ctx context.Context, query string) (*models.ChatResult, error) {
	store := p.current()

	count, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: count: %w", err)
	}
	if count == 0 {
		return &models.ChatResult{
			Query:   query,
			Answer:  models.NoDocumentsAnswer,
			Sources: []models.Source{},
			Reason:  models.ReasonNoDocuments,
		}, nil
	}

	outcome := p.embed.Embed(ctx, query)
	if outcome.Degraded {
		// Zero-vector queries rank arbitrarily; log loudly but proceed.
		log.Warn().Str("reason", outcome.Reason).Msg("query embedding degraded to zero vector")
	}

	results, err := store.Search(ctx, outcome.Vector, p.cfg.RAG.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	if len(results) == 0 {
		return &models.ChatResult{
			Query:   query,
			Answer:  models.NoResultsAnswer,
			Sources: []models.Source{},
			Reason:  models.ReasonNoResults,
		}, nil
	}

	prompt := fmt.Sprintf(models.RAGPromptTemplate, buildContext(results), query)
	answer, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}

	sources := make([]models.Source, len(results))
	for i, r := range results {
		sources[i] = models.Source{
			Source:   r.Meta.Source,
			Rank:     i + 1,
			Distance: r.Distance,
			Preview:  preview(r.Meta.Text),
		}
	}

	return &models.ChatResult{
		Query:   query,
		Answer:  answer,
		Sources: sources,
	}, nil
}

// Stats reports the current store snapshot's counters.
func (p *Pipeline) Stats(ctx context.Context) (models.StoreStats, error) {
	return p.current().Stats(ctx)
}

// Clear drops all indexed entries and persists the empty state.
func (p *Pipeline) Clear(ctx context.Context) error {
	store := p.current()
	if err := store.Clear(ctx); err != nil {
		return err
	}
	return store.Persist(ctx)
}

// buildContext assembles the ranked chunks into the delimited context
// block the prompt template embeds.
func buildContext(results []models.SearchResult) string {
	var parts []string
	for i, r := range results {
		parts = append(parts,
			fmt.Sprintf(models.ExcerptHeaderTemplate, i+1),
			"Source: "+r.Meta.Source,
			"Content: "+r.Meta.Text,
			"",
		)
	}
	return strings.Join(parts, "\n")
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > models.PreviewChars {
		return string(runes[:models.PreviewChars]) + "..."
	}
	return text
}
