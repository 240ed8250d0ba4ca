// Package vectorstore implements a flat in-memory L2 index over
// fixed-dimension float32 vectors with parallel chunk metadata. Search is
// an exhaustive scan, which is the intended design for corpora up to the
// low tens of thousands of chunks.
package vectorstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"document-chat/internal/models"
)

var (
	// ErrDimensionMismatch reports a vector that normalization could not
	// reconcile with the store dimension.
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")

	// ErrCorruptStore reports persisted artifacts that disagree with each
	// other or with the on-disk format.
	ErrCorruptStore = errors.New("vectorstore: corrupt persisted store")
)

// Vector block layout: 4-byte magic, uint32 version, uint32 dimension,
// uint32 count, then count rows of dimension little-endian float32 values.
const (
	indexMagic    = "DCVS"
	formatVersion = 1
)

// Store holds vectors and metadata in parallel slices. The entry count of
// both is always equal; position i in either refers to the same entry.
type Store struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	metadata  []models.ChunkMeta

	indexPath string
	metaPath  string
}

// New creates an empty store of the given dimension. indexPath and
// metaPath are where Persist and Restore read and write the two
// companion artifacts.
func New(dimension int, indexPath, metaPath string) *Store {
	return &Store{
		dimension: dimension,
		indexPath: indexPath,
		metaPath:  metaPath,
	}
}

func (s *Store) Dimension() int {
	return s.dimension
}

// Len returns the number of indexed entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Add appends vectors with their metadata. Vectors whose length disagrees
// with the store dimension are zero-padded or truncated with a warning;
// a zero-length vector fails the whole call with ErrDimensionMismatch.
// Nothing is appended unless every entry passes, so the vector/metadata
// parity invariant holds even on error.
func (s *Store) Add(vectors [][]float32, meta []models.ChunkMeta) error {
	if len(vectors) != len(meta) {
		return fmt.Errorf("vectorstore: %d vectors but %d metadata records", len(vectors), len(meta))
	}
	if len(vectors) == 0 {
		return nil
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		nv, err := s.normalize(v)
		if err != nil {
			return fmt.Errorf("entry %d (%s#%d): %w", i, meta[i].Source, meta[i].SequenceIndex, err)
		}
		normalized[i] = nv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = append(s.vectors, normalized...)
	s.metadata = append(s.metadata, meta...)
	return nil
}

// normalize copies v at the store dimension, padding or truncating as a
// documented lossy fallback. Zero-length input cannot be reconciled.
func (s *Store) normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrDimensionMismatch
	}
	out := make([]float32, s.dimension)
	copy(out, v)
	if len(v) != s.dimension {
		log.Warn().
			Int("got", len(v)).
			Int("want", s.dimension).
			Msg("embedding dimension mismatch, padding/truncating")
	}
	return out, nil
}

// Search returns the k entries nearest the query by squared L2 distance,
// ascending, ties broken by insertion position. An empty store yields an
// empty result, not an error.
func (s *Store) Search(query []float32, k int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if k > len(s.vectors) {
		k = len(s.vectors)
	}

	q := make([]float32, s.dimension)
	copy(q, query)

	results := make([]models.SearchResult, len(s.vectors))
	for i, v := range s.vectors {
		results[i] = models.SearchResult{
			Meta:     s.metadata[i],
			Distance: l2Squared(q, v),
			Position: i,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results[:k], nil
}

func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Clear drops all entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.metadata = nil
	return nil
}

// Stats reports a read-only snapshot. Sources are de-duplicated and
// sorted for stable output.
func (s *Store) Stats() (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.metadata))
	sources := make([]string, 0)
	for _, m := range s.metadata {
		if _, ok := seen[m.Source]; ok {
			continue
		}
		seen[m.Source] = struct{}{}
		sources = append(sources, m.Source)
	}
	sort.Strings(sources)

	return models.StoreStats{
		TotalVectors: len(s.vectors),
		Dimension:    s.dimension,
		TotalChunks:  len(s.metadata),
		Sources:      sources,
	}, nil
}

// Persist writes the store to its configured companion paths.
func (s *Store) Persist() error {
	return s.Save(s.indexPath, s.metaPath)
}

// Restore loads the store from its configured companion paths.
func (s *Store) Restore() error {
	return s.Load(s.indexPath, s.metaPath)
}

// Save writes the vector block and metadata block. Both are written
// together; a store that saves one without the other is unreadable.
func (s *Store) Save(indexPath, metaPath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range []string{indexPath, metaPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(indexPath)
	if err != nil {
		return err
	}
	if err := s.writeVectorBlock(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	data, err := json.Marshal(s.metadata)
	if err != nil {
		return err
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return err
	}

	log.Info().
		Int("vectors", len(s.vectors)).
		Str("index", indexPath).
		Str("metadata", metaPath).
		Msg("vector store saved")
	return nil
}

func (s *Store) writeVectorBlock(w io.Writer) error {
	if _, err := w.Write([]byte(indexMagic)); err != nil {
		return err
	}
	header := []uint32{formatVersion, uint32(s.dimension), uint32(len(s.vectors))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return err
		}
	}
	for _, v := range s.vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the store contents from the two companion artifacts.
// Finding only one of the two, or entry counts that disagree, fails with
// ErrCorruptStore rather than loading a partial state.
func (s *Store) Load(indexPath, metaPath string) error {
	_, indexErr := os.Stat(indexPath)
	_, metaErr := os.Stat(metaPath)
	if os.IsNotExist(indexErr) != os.IsNotExist(metaErr) {
		return fmt.Errorf("%w: companion artifact missing (index=%v, metadata=%v)",
			ErrCorruptStore, indexErr == nil, metaErr == nil)
	}
	if indexErr != nil {
		return indexErr
	}
	if metaErr != nil {
		return metaErr
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return err
	}
	defer f.Close()
	vectors, err := s.readVectorBlock(f)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}
	var meta []models.ChunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("%w: metadata block: %v", ErrCorruptStore, err)
	}

	if len(vectors) != len(meta) {
		return fmt.Errorf("%w: %d vectors but %d metadata records",
			ErrCorruptStore, len(vectors), len(meta))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = vectors
	s.metadata = meta

	log.Info().Int("vectors", len(vectors)).Msg("vector store loaded")
	return nil
}

func (s *Store) readVectorBlock(r io.Reader) ([][]float32, error) {
	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != indexMagic {
		return nil, fmt.Errorf("%w: bad vector block magic", ErrCorruptStore)
	}
	var version, dimension, count uint32
	for _, dst := range []*uint32{&version, &dimension, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("%w: truncated vector block header", ErrCorruptStore)
		}
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptStore, version)
	}
	if int(dimension) != s.dimension {
		return nil, fmt.Errorf("%w: stored dimension %d, store configured for %d",
			ErrCorruptStore, dimension, s.dimension)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		row := make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("%w: truncated vector block at row %d", ErrCorruptStore, i)
		}
		vectors[i] = row
	}
	return vectors, nil
}
