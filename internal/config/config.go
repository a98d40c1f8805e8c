// Package config loads and validates vecsync configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (vecsync.yaml or .vecsync.yaml in the corpus root)
//  3. Environment variables (VECSYNC_*)
//
// Secrets (PINECONE_API_KEY, OPENAI_API_KEY, REDIS_PASSWORD) are never read
// from the config file; they come from the environment, optionally via .env.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete vecsync configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Registry  RegistryConfig  `yaml:"registry" json:"registry"`
	Reindex   ReindexConfig   `yaml:"reindex" json:"reindex"`
	Eval      EvalConfig      `yaml:"eval" json:"eval"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// CorpusConfig configures the document source.
type CorpusConfig struct {
	// Source selects the corpus backend: "fs" or "s3".
	Source string `yaml:"source" json:"source"`
	// Root is the corpus directory for fs sources.
	Root string `yaml:"root" json:"root"`
	// Include is a list of doublestar glob patterns; empty means common
	// text document types.
	Include []string `yaml:"include" json:"include"`
	// Exclude patterns are applied after Include.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// MaxFileSizeMB skips documents larger than this (default: 32).
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	// S3 settings (used when source is "s3").
	S3 S3Config `yaml:"s3" json:"s3"`
}

// S3Config configures the S3 corpus source.
type S3Config struct {
	Bucket string `yaml:"bucket" json:"bucket"`
	Prefix string `yaml:"prefix" json:"prefix"`
	Region string `yaml:"region" json:"region"`
}

// ChunkingConfig configures the text chunker.
type ChunkingConfig struct {
	// MaxChars is the upper bound per chunk (default: 2000).
	MaxChars int `yaml:"max_chars" json:"max_chars"`
	// Overlap is the shared span between consecutive chunks (default: 200).
	Overlap int `yaml:"overlap" json:"overlap"`
	// Boundary selects where splits are allowed: "paragraph", "sentence",
	// or "fixed" (default: paragraph).
	Boundary string `yaml:"boundary" json:"boundary"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder: "ollama", "openai", or "static".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Dimensions of the embedding vectors. 0 auto-detects from the provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the LRU embedding cache capacity (default: 4096).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// OpenAIBaseURL overrides the OpenAI-compatible API base URL.
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
	// RatePerSec caps embedding requests per second. 0 disables the limiter.
	RatePerSec float64 `yaml:"rate_per_sec" json:"rate_per_sec"`
}

// IndexConfig configures the vector index client.
type IndexConfig struct {
	// Provider selects the index backend: "pinecone" or "local".
	Provider string `yaml:"provider" json:"provider"`
	// Name is the index name; created on first use if absent.
	Name string `yaml:"name" json:"name"`
	// Namespace scopes all operations within the index.
	Namespace string `yaml:"namespace" json:"namespace"`
	// Cloud and Region describe the serverless placement for index creation.
	Cloud  string `yaml:"cloud" json:"cloud"`
	Region string `yaml:"region" json:"region"`
	// Metric is the similarity metric (default: cosine).
	Metric string `yaml:"metric" json:"metric"`
	// BatchSize is the number of vectors per upsert request (default: 100).
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Path is the on-disk location for the local index provider.
	Path string `yaml:"path" json:"path"`
	// RatePerSec caps index requests per second. 0 disables the limiter.
	RatePerSec float64 `yaml:"rate_per_sec" json:"rate_per_sec"`
}

// RegistryConfig configures the document registry storage.
type RegistryConfig struct {
	// Backend selects the registry store: "sqlite", "redis", or "memory".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the SQLite database path.
	Path string `yaml:"path" json:"path"`
	// Redis settings (used when backend is "redis").
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the Redis registry backend.
// The password is read from REDIS_PASSWORD, never from the file.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// ReindexConfig configures the selective reindexing pass.
type ReindexConfig struct {
	// Workers is the document-level worker pool size.
	Workers int `yaml:"workers" json:"workers"`
	// MaxRetries per chunk-level embed/upsert operation.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RetryDelay is the initial backoff delay (e.g. "500ms").
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`
	// WatchDebounce is the settle window for watch mode (e.g. "500ms").
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// EvalConfig configures the retrieval tester.
type EvalConfig struct {
	// TopK is the number of results retrieved per query (default: 10).
	TopK int `yaml:"top_k" json:"top_k"`
	// QueriesPath is the default query set file for `vecsync eval`.
	QueriesPath string `yaml:"queries_path" json:"queries_path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File enables rotating file logging when non-empty.
	File string `yaml:"file" json:"file"`
}

// defaultExcludePatterns are always excluded from filesystem corpora.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/.vecsync/**",
	"**/node_modules/**",
	"**/.DS_Store",
	"**/*.tmp",
	"**/~$*",
}

// defaultIncludePatterns cover common plain-text document types.
var defaultIncludePatterns = []string{
	"**/*.txt",
	"**/*.md",
	"**/*.html",
	"**/*.htm",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			Source:        "fs",
			Root:          ".",
			Include:       defaultIncludePatterns,
			Exclude:       defaultExcludePatterns,
			MaxFileSizeMB: 32,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Chunking: ChunkingConfig{
			MaxChars: 2000,
			Overlap:  200,
			Boundary: "paragraph",
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0, // Auto-detect from embedder
			BatchSize:  32,
			CacheSize:  4096,
			OllamaHost: "", // Empty uses default http://localhost:11434
			RatePerSec: 0,
		},
		Index: IndexConfig{
			Provider:   "local",
			Name:       "vecsync",
			Namespace:  "",
			Cloud:      "aws",
			Region:     "us-east-1",
			Metric:     "cosine",
			BatchSize:  100,
			Path:       filepath.Join(".vecsync", "index"),
			RatePerSec: 0,
		},
		Registry: RegistryConfig{
			Backend: "sqlite",
			Path:    filepath.Join(".vecsync", "registry.db"),
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Reindex: ReindexConfig{
			Workers:       min(runtime.NumCPU(), 8),
			MaxRetries:    3,
			RetryDelay:    "500ms",
			WatchDebounce: "500ms",
		},
		Eval: EvalConfig{
			TopK: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load loads configuration for the given corpus directory.
// Pass an explicit path to load exactly that file; pass "" to search dir for
// vecsync.yaml then .vecsync.yaml.
func Load(dir, explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return nil, fmt.Errorf("config file not found: %s", explicitPath)
		}
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir attempts to load vecsync.yaml or .vecsync.yaml from dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{"vecsync.yaml", "vecsync.yml", ".vecsync.yaml", ".vecsync.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Corpus
	if other.Corpus.Source != "" {
		c.Corpus.Source = other.Corpus.Source
	}
	if other.Corpus.Root != "" {
		c.Corpus.Root = other.Corpus.Root
	}
	if len(other.Corpus.Include) > 0 {
		c.Corpus.Include = other.Corpus.Include
	}
	if len(other.Corpus.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Corpus.Exclude = append(c.Corpus.Exclude, other.Corpus.Exclude...)
	}
	if other.Corpus.MaxFileSizeMB != 0 {
		c.Corpus.MaxFileSizeMB = other.Corpus.MaxFileSizeMB
	}
	if other.Corpus.S3.Bucket != "" {
		c.Corpus.S3.Bucket = other.Corpus.S3.Bucket
	}
	if other.Corpus.S3.Prefix != "" {
		c.Corpus.S3.Prefix = other.Corpus.S3.Prefix
	}
	if other.Corpus.S3.Region != "" {
		c.Corpus.S3.Region = other.Corpus.S3.Region
	}

	// Chunking
	if other.Chunking.MaxChars != 0 {
		c.Chunking.MaxChars = other.Chunking.MaxChars
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}
	if other.Chunking.Boundary != "" {
		c.Chunking.Boundary = other.Chunking.Boundary
	}

	// Embedding
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}
	if other.Embedding.OllamaHost != "" {
		c.Embedding.OllamaHost = other.Embedding.OllamaHost
	}
	if other.Embedding.OpenAIBaseURL != "" {
		c.Embedding.OpenAIBaseURL = other.Embedding.OpenAIBaseURL
	}
	if other.Embedding.RatePerSec != 0 {
		c.Embedding.RatePerSec = other.Embedding.RatePerSec
	}

	// Index
	if other.Index.Provider != "" {
		c.Index.Provider = other.Index.Provider
	}
	if other.Index.Name != "" {
		c.Index.Name = other.Index.Name
	}
	if other.Index.Namespace != "" {
		c.Index.Namespace = other.Index.Namespace
	}
	if other.Index.Cloud != "" {
		c.Index.Cloud = other.Index.Cloud
	}
	if other.Index.Region != "" {
		c.Index.Region = other.Index.Region
	}
	if other.Index.Metric != "" {
		c.Index.Metric = other.Index.Metric
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}
	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.RatePerSec != 0 {
		c.Index.RatePerSec = other.Index.RatePerSec
	}

	// Registry
	if other.Registry.Backend != "" {
		c.Registry.Backend = other.Registry.Backend
	}
	if other.Registry.Path != "" {
		c.Registry.Path = other.Registry.Path
	}
	if other.Registry.Redis.Addr != "" {
		c.Registry.Redis.Addr = other.Registry.Redis.Addr
	}
	if other.Registry.Redis.DB != 0 {
		c.Registry.Redis.DB = other.Registry.Redis.DB
	}
	if other.Registry.Redis.PoolSize != 0 {
		c.Registry.Redis.PoolSize = other.Registry.Redis.PoolSize
	}

	// Reindex
	if other.Reindex.Workers != 0 {
		c.Reindex.Workers = other.Reindex.Workers
	}
	if other.Reindex.MaxRetries != 0 {
		c.Reindex.MaxRetries = other.Reindex.MaxRetries
	}
	if other.Reindex.RetryDelay != "" {
		c.Reindex.RetryDelay = other.Reindex.RetryDelay
	}
	if other.Reindex.WatchDebounce != "" {
		c.Reindex.WatchDebounce = other.Reindex.WatchDebounce
	}

	// Eval
	if other.Eval.TopK != 0 {
		c.Eval.TopK = other.Eval.TopK
	}
	if other.Eval.QueriesPath != "" {
		c.Eval.QueriesPath = other.Eval.QueriesPath
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies VECSYNC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VECSYNC_CORPUS_ROOT"); v != "" {
		c.Corpus.Root = v
	}
	if v := os.Getenv("VECSYNC_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("VECSYNC_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("VECSYNC_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("VECSYNC_INDEX_PROVIDER"); v != "" {
		c.Index.Provider = v
	}
	if v := os.Getenv("VECSYNC_INDEX_NAME"); v != "" {
		c.Index.Name = v
	}
	if v := os.Getenv("VECSYNC_INDEX_NAMESPACE"); v != "" {
		c.Index.Namespace = v
	}
	if v := os.Getenv("VECSYNC_REGISTRY_BACKEND"); v != "" {
		c.Registry.Backend = v
	}
	if v := os.Getenv("VECSYNC_REDIS_ADDR"); v != "" {
		c.Registry.Redis.Addr = v
	}
	if v := os.Getenv("VECSYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Reindex.Workers = n
		}
	}
	if v := os.Getenv("VECSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validSources := map[string]bool{"fs": true, "s3": true}
	if !validSources[strings.ToLower(c.Corpus.Source)] {
		return fmt.Errorf("corpus.source must be 'fs' or 's3', got %s", c.Corpus.Source)
	}
	if strings.ToLower(c.Corpus.Source) == "s3" && c.Corpus.S3.Bucket == "" {
		return fmt.Errorf("corpus.s3.bucket is required when corpus.source is 's3'")
	}

	if c.Chunking.MaxChars <= 0 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must be non-negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.MaxChars {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.max_chars (%d)",
			c.Chunking.Overlap, c.Chunking.MaxChars)
	}
	validBoundaries := map[string]bool{"paragraph": true, "sentence": true, "fixed": true}
	if !validBoundaries[strings.ToLower(c.Chunking.Boundary)] {
		return fmt.Errorf("chunking.boundary must be 'paragraph', 'sentence', or 'fixed', got %s", c.Chunking.Boundary)
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "static": true}
	if !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be 'ollama', 'openai', or 'static', got %s", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}

	validIndexProviders := map[string]bool{"pinecone": true, "local": true}
	if !validIndexProviders[strings.ToLower(c.Index.Provider)] {
		return fmt.Errorf("index.provider must be 'pinecone' or 'local', got %s", c.Index.Provider)
	}
	if c.Index.Name == "" {
		return fmt.Errorf("index.name must not be empty")
	}
	validMetrics := map[string]bool{"cosine": true, "dotproduct": true, "euclidean": true}
	if !validMetrics[strings.ToLower(c.Index.Metric)] {
		return fmt.Errorf("index.metric must be 'cosine', 'dotproduct', or 'euclidean', got %s", c.Index.Metric)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}

	validBackends := map[string]bool{"sqlite": true, "redis": true, "memory": true}
	if !validBackends[strings.ToLower(c.Registry.Backend)] {
		return fmt.Errorf("registry.backend must be 'sqlite', 'redis', or 'memory', got %s", c.Registry.Backend)
	}

	if c.Reindex.Workers <= 0 {
		return fmt.Errorf("reindex.workers must be positive, got %d", c.Reindex.Workers)
	}
	if c.Reindex.MaxRetries < 0 {
		return fmt.Errorf("reindex.max_retries must be non-negative, got %d", c.Reindex.MaxRetries)
	}
	if _, err := time.ParseDuration(c.Reindex.RetryDelay); err != nil {
		return fmt.Errorf("reindex.retry_delay is not a valid duration: %s", c.Reindex.RetryDelay)
	}
	if _, err := time.ParseDuration(c.Reindex.WatchDebounce); err != nil {
		return fmt.Errorf("reindex.watch_debounce is not a valid duration: %s", c.Reindex.WatchDebounce)
	}

	if c.Eval.TopK <= 0 {
		return fmt.Errorf("eval.top_k must be positive, got %d", c.Eval.TopK)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// RetryDelayDuration returns the parsed retry delay.
// Validate guarantees the value parses.
func (c *Config) RetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.Reindex.RetryDelay)
	return d
}

// WatchDebounceDuration returns the parsed watch debounce window.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Reindex.WatchDebounce)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
