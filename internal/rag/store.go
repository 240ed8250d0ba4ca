package rag

import (
	"context"

	"document-chat/internal/models"
	"document-chat/internal/vectorstore"
)

// Store is the vector backend the pipeline indexes into and ranks against.
type Store interface {
	Add(ctx context.Context, vectors [][]float32, meta []models.ChunkMeta) error
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Persist(ctx context.Context) error
	Stats(ctx context.Context) (models.StoreStats, error)
}

type memoryStore struct {
	s *vectorstore.Store
}

// NewMemoryStore adapts the flat in-memory store to the pipeline's
// context-aware store interface.
func NewMemoryStore(s *vectorstore.Store) Store {
	return memoryStore{s: s}
}

func (m memoryStore) Add(_ context.Context, vectors [][]float32, meta []models.ChunkMeta) error {
	return m.s.Add(vectors, meta)
}

func (m memoryStore) Search(_ context.Context, query []float32, k int) ([]models.SearchResult, error) {
	return m.s.Search(query, k)
}

func (m memoryStore) Count(_ context.Context) (int, error) {
	return m.s.Len(), nil
}

func (m memoryStore) Clear(_ context.Context) error {
	return m.s.Clear()
}

func (m memoryStore) Persist(_ context.Context) error {
	return m.s.Persist()
}

func (m memoryStore) Stats(_ context.Context) (models.StoreStats, error) {
	return m.s.Stats()
}
