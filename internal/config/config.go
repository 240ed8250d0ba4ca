package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SamplingOptions is the generation sampling surface exposed to operators.
type SamplingOptions struct {
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	TopK          int     `yaml:"top_k"`
	TopP          float64 `yaml:"top_p"`
	RepeatPenalty float64 `yaml:"repeat_penalty"`
}

// LLMConfig points at one Ollama-hosted model.
type LLMConfig struct {
	BaseURL     string          `yaml:"base_url"`
	Model       string          `yaml:"model"`
	TimeoutSecs int             `yaml:"timeout_secs"`
	Options     SamplingOptions `yaml:"options"`
}

// RAGConfig holds the chunking and retrieval tunables.
type RAGConfig struct {
	Dimension    int    `yaml:"dimension"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	DocumentsDir string `yaml:"documents_dir"`
	IndexPath    string `yaml:"index_path"`
	MetadataPath string `yaml:"metadata_path"`
}

// DatabaseConfig configures the optional pgvector store backend.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
}

// ServerConfig configures the HTTP layer.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Server   ServerConfig `yaml:"server"`
	EmbedLLM LLMConfig    `yaml:"embed_llm"`
	GenLLM   LLMConfig    `yaml:"gen_llm"`
	RAG      RAGConfig    `yaml:"rag"`
	Store    StoreConfig  `yaml:"store"`
}

const (
	defaultOllamaHost = "http://localhost:11434"

	// 500 tokens per chunk, 50 tokens of overlap, at ~4 chars per token
	defaultChunkSize    = 2000
	defaultChunkOverlap = 200

	defaultDimension = 768
	defaultTopK      = 5
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration that works against a local Ollama install.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = defaultOllamaHost
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nomic-embed-text:v1.5"
	}
	if cfg.EmbedLLM.TimeoutSecs == 0 {
		cfg.EmbedLLM.TimeoutSecs = 30
	}
	if cfg.GenLLM.BaseURL == "" {
		cfg.GenLLM.BaseURL = defaultOllamaHost
	}
	if cfg.GenLLM.Model == "" {
		cfg.GenLLM.Model = "gemma:2b"
	}
	if cfg.GenLLM.TimeoutSecs == 0 {
		cfg.GenLLM.TimeoutSecs = 120
	}
	if cfg.GenLLM.Options.Temperature == 0 {
		cfg.GenLLM.Options.Temperature = 0.7
	}
	if cfg.GenLLM.Options.MaxTokens == 0 {
		cfg.GenLLM.Options.MaxTokens = 512
	}
	if cfg.GenLLM.Options.TopK == 0 {
		cfg.GenLLM.Options.TopK = 50
	}
	if cfg.GenLLM.Options.TopP == 0 {
		cfg.GenLLM.Options.TopP = 0.9
	}
	if cfg.GenLLM.Options.RepeatPenalty == 0 {
		cfg.GenLLM.Options.RepeatPenalty = 1.1
	}
	if cfg.RAG.Dimension == 0 {
		cfg.RAG.Dimension = defaultDimension
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.DocumentsDir == "" {
		cfg.RAG.DocumentsDir = "./data/documents"
	}
	if cfg.RAG.IndexPath == "" {
		cfg.RAG.IndexPath = "./data/vector_store/index.bin"
	}
	if cfg.RAG.MetadataPath == "" {
		cfg.RAG.MetadataPath = "./data/vector_store/metadata.json"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
}

// Validate rejects configurations outside the documented parameter ranges.
func (c *Config) Validate() error {
	o := c.GenLLM.Options
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("config: temperature %v out of range [0,2]", o.Temperature)
	}
	if o.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", o.MaxTokens)
	}
	if o.TopK <= 0 {
		return fmt.Errorf("config: top_k must be positive, got %d", o.TopK)
	}
	if o.TopP < 0 || o.TopP > 1 {
		return fmt.Errorf("config: top_p %v out of range [0,1]", o.TopP)
	}
	if o.RepeatPenalty <= 0 {
		return fmt.Errorf("config: repeat_penalty must be positive, got %v", o.RepeatPenalty)
	}
	if c.RAG.Dimension <= 0 {
		return fmt.Errorf("config: dimension must be positive, got %d", c.RAG.Dimension)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("config: chunk_overlap must not be negative, got %d", c.RAG.ChunkOverlap)
	}
	switch c.Store.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	return nil
}
