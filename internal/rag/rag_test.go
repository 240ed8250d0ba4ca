package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-chat/internal/config"
	"document-chat/internal/embedding"
	"document-chat/internal/models"
	"document-chat/internal/vectorstore"
)

// fakeEmbedder ranks deterministically: texts mentioning alpha embed to
// (1,0), beta to (0,1), anything else to (0,0). Texts mentioning
// "degrademe" fail and fall back to the zero vector.
type fakeEmbedder struct {
	embedCalls int
	batchCalls int
}

func (f *fakeEmbedder) vector(text string) embedding.Outcome {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "degrademe") {
		return embedding.Outcome{Vector: []float32{0, 0}, Degraded: true, Reason: "model error"}
	}
	switch {
	case strings.Contains(lower, "alpha"):
		return embedding.Outcome{Vector: []float32{1, 0}}
	case strings.Contains(lower, "beta"):
		return embedding.Outcome{Vector: []float32{0, 1}}
	}
	return embedding.Outcome{Vector: []float32{0, 0}}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) embedding.Outcome {
	f.embedCalls++
	return f.vector(text)
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) []embedding.Outcome {
	f.batchCalls++
	outcomes := make([]embedding.Outcome, len(texts))
	for i, t := range texts {
		outcomes[i] = f.vector(t)
	}
	return outcomes
}

func (f *fakeEmbedder) Dimension() int { return 2 }

type fakeGenerator struct {
	calls   int
	prompts []string
	answer  string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeEmbedder, *fakeGenerator) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.RAG.Dimension = 2
	cfg.RAG.TopK = 3
	cfg.RAG.IndexPath = filepath.Join(dir, "index.bin")
	cfg.RAG.MetadataPath = filepath.Join(dir, "meta.json")

	embed := &fakeEmbedder{}
	gen := &fakeGenerator{answer: "generated answer"}

	store := NewMemoryStore(vectorstore.New(cfg.RAG.Dimension, cfg.RAG.IndexPath, cfg.RAG.MetadataPath))
	newStore := func(ctx context.Context) (Store, error) {
		return NewMemoryStore(vectorstore.New(cfg.RAG.Dimension, cfg.RAG.IndexPath, cfg.RAG.MetadataPath)), nil
	}
	return New(embed, gen, store, newStore, cfg), embed, gen
}

func TestAnswerEmptyStore(t *testing.T) {
	p, embed, gen := newTestPipeline(t)

	result, err := p.Answer(context.Background(), "what is this about?")
	require.NoError(t, err)

	assert.Equal(t, models.ReasonNoDocuments, result.Reason)
	assert.Equal(t, models.NoDocumentsAnswer, result.Answer)
	assert.NotNil(t, result.Sources)
	assert.Empty(t, result.Sources)

	// The empty-store answer must not touch either backend.
	assert.Zero(t, embed.embedCalls)
	assert.Zero(t, gen.calls)
}

func TestIngestReplaceBuildsIndex(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	report, err := p.IngestReplace(context.Background(), map[string]string{
		"b.txt": "Beta content lives here.",
		"a.txt": "Alpha content lives here.",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.DocumentsProcessed)
	assert.Equal(t, 2, report.TotalChunks)
	assert.Equal(t, []string{"a.txt", "b.txt"}, report.Files)
	assert.Empty(t, report.Warnings)

	stats, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, []string{"a.txt", "b.txt"}, stats.Sources)

	// Ingestion persists the new store.
	restored := vectorstore.New(2, p.cfg.RAG.IndexPath, p.cfg.RAG.MetadataPath)
	require.NoError(t, restored.Restore())
	assert.Equal(t, 2, restored.Len())
}

func TestIngestReplaceDiscardsPreviousCorpus(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IngestReplace(ctx, map[string]string{"old.txt": "Alpha text."})
	require.NoError(t, err)

	_, err = p.IngestReplace(ctx, map[string]string{"new.txt": "Beta text."})
	require.NoError(t, err)

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt"}, stats.Sources)
	assert.Equal(t, 1, stats.TotalVectors)
}

func TestIngestEmptyDocumentWarns(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	report, err := p.IngestReplace(context.Background(), map[string]string{
		"empty.txt": "   \n\t  ",
		"good.txt":  "Alpha content lives here.",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsProcessed)
	assert.Equal(t, []string{"good.txt"}, report.Files)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "empty.txt")
	assert.Contains(t, report.Warnings[0], "no text could be extracted")
}

func TestIngestDegradedEmbeddingsWarnButIndex(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	report, err := p.IngestReplace(context.Background(), map[string]string{
		"flaky.txt": "degrademe please.",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsProcessed)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "fell back to the zero vector")

	// Degraded chunks are still indexed under the zero vector.
	stats, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)
}

func TestAnswerRetrievesAndGenerates(t *testing.T) {
	p, _, gen := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IngestReplace(ctx, map[string]string{
		"alpha.txt": "Alpha facts are stored here.",
		"beta.txt":  "Beta facts are stored here.",
	})
	require.NoError(t, err)

	result, err := p.Answer(ctx, "tell me about alpha")
	require.NoError(t, err)

	assert.Equal(t, "generated answer", result.Answer)
	assert.Empty(t, result.Reason)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "alpha.txt", result.Sources[0].Source)
	assert.Equal(t, 1, result.Sources[0].Rank)
	assert.Equal(t, 2, result.Sources[1].Rank)
	assert.LessOrEqual(t, result.Sources[0].Distance, result.Sources[1].Distance)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "--- Document Excerpt 1 ---")
	assert.Contains(t, prompt, "Source: alpha.txt")
	assert.Contains(t, prompt, "Content: Alpha facts are stored here.")
	assert.Contains(t, prompt, "Question: tell me about alpha")
}

func TestAnswerGenerationFailure(t *testing.T) {
	p, _, gen := newTestPipeline(t)
	gen.err = errors.New("model unavailable")
	ctx := context.Background()

	_, err := p.IngestReplace(ctx, map[string]string{"a.txt": "Alpha text."})
	require.NoError(t, err)

	_, err = p.Answer(ctx, "alpha?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestAnswerPreviewTruncation(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	long := "Alpha " + strings.Repeat("filler words keep coming ", 20) + "and stop."
	require.Greater(t, len(long), models.PreviewChars)

	_, err := p.IngestReplace(ctx, map[string]string{"long.txt": long})
	require.NoError(t, err)

	result, err := p.Answer(ctx, "alpha?")
	require.NoError(t, err)
	require.NotEmpty(t, result.Sources)

	preview := result.Sources[0].Preview
	assert.Len(t, preview, models.PreviewChars+3)
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestAnswerPreviewKeepsRuneBoundaries(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	long := "Alpha " + strings.Repeat("café crème résumé ", 20) + "fin."
	require.Greater(t, utf8.RuneCountInString(long), models.PreviewChars)

	_, err := p.IngestReplace(ctx, map[string]string{"accents.txt": long})
	require.NoError(t, err)

	result, err := p.Answer(ctx, "alpha?")
	require.NoError(t, err)
	require.NotEmpty(t, result.Sources)

	preview := result.Sources[0].Preview
	assert.True(t, utf8.ValidString(preview), "preview split a multi-byte rune")
	assert.Equal(t, models.PreviewChars+3, utf8.RuneCountInString(preview))
	assert.True(t, strings.HasSuffix(preview, "..."))
}

// persistFailStore accepts writes but refuses to persist, standing in for
// a backend that fails at the end of a replacement build.
type persistFailStore struct {
	Store
}

func (persistFailStore) Persist(context.Context) error {
	return errors.New("disk full")
}

func TestIngestReplaceFailureKeepsPreviousCorpus(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IngestReplace(ctx, map[string]string{"old.txt": "Alpha text."})
	require.NoError(t, err)

	dir := t.TempDir()
	p.newStore = func(context.Context) (Store, error) {
		flat := vectorstore.New(2, filepath.Join(dir, "index.bin"), filepath.Join(dir, "meta.json"))
		return persistFailStore{Store: NewMemoryStore(flat)}, nil
	}

	_, err = p.IngestReplace(ctx, map[string]string{"new.txt": "Beta text."})
	require.Error(t, err)

	// A failed replacement must leave the served corpus untouched.
	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.txt"}, stats.Sources)

	result, err := p.Answer(ctx, "alpha facts?")
	require.NoError(t, err)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "old.txt", result.Sources[0].Source)
}

func TestClearPersistsEmptyState(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IngestReplace(ctx, map[string]string{"a.txt": "Alpha text."})
	require.NoError(t, err)

	require.NoError(t, p.Clear(ctx))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalVectors)

	restored := vectorstore.New(2, p.cfg.RAG.IndexPath, p.cfg.RAG.MetadataPath)
	require.NoError(t, restored.Restore())
	assert.Zero(t, restored.Len())
}

// emptySearchStore reports a non-zero count but never returns matches,
// standing in for backends whose ranking can come back empty.
type emptySearchStore struct{}

func (emptySearchStore) Add(context.Context, [][]float32, []models.ChunkMeta) error { return nil }
func (emptySearchStore) Search(context.Context, []float32, int) ([]models.SearchResult, error) {
	return nil, nil
}
func (emptySearchStore) Count(context.Context) (int, error)                { return 7, nil }
func (emptySearchStore) Clear(context.Context) error                       { return nil }
func (emptySearchStore) Persist(context.Context) error                     { return nil }
func (emptySearchStore) Stats(context.Context) (models.StoreStats, error)  { return models.StoreStats{}, nil }

func TestAnswerNoResults(t *testing.T) {
	p, _, gen := newTestPipeline(t)
	p.swap(emptySearchStore{})

	result, err := p.Answer(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, models.ReasonNoResults, result.Reason)
	assert.Equal(t, models.NoResultsAnswer, result.Answer)
	assert.Empty(t, result.Sources)
	assert.Zero(t, gen.calls)
}
