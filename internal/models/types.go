package models

// ChunkMeta is the metadata record stored alongside each indexed vector
type ChunkMeta struct {
	Text          string `json:"text"`
	Source        string `json:"source"`
	SequenceIndex int    `json:"sequence_index"`
}

// SearchResult is one ranked hit from the vector store, lower distance is better
type SearchResult struct {
	Meta     ChunkMeta
	Distance float32
	Position int
}

// Source is a provenance entry returned with a chat answer
type Source struct {
	Source   string  `json:"source"`
	Rank     int     `json:"rank"`
	Distance float32 `json:"score"`
	Preview  string  `json:"text"`
}

// ChatResult packages the generated answer with its provenance
type ChatResult struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Reason  string   `json:"reason,omitempty"`
}

// IngestReport summarizes one full-replace ingestion run
type IngestReport struct {
	DocumentsProcessed int      `json:"documents_processed"`
	TotalChunks        int      `json:"total_chunks"`
	Files              []string `json:"files"`
	Warnings           []string `json:"warnings,omitempty"`
}

// StoreStats is a read-only snapshot of the vector store
type StoreStats struct {
	TotalVectors int      `json:"total_vectors"`
	Dimension    int      `json:"dimension"`
	TotalChunks  int      `json:"total_chunks"`
	Sources      []string `json:"sources"`
}
