package embed

import "time"

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model. nomic-embed-text
	// is small, general purpose, and widely installed.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaPoolSize for connection pool
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use (default: nomic-embed-text)
	Model string

	// Dimensions can be set to override auto-detection (0 = auto-detect)
	Dimensions int

	// BatchSize for batch embedding requests (default: 32)
	BatchSize int

	// Timeout for API requests (default: 60s)
	Timeout time.Duration

	// ConnectTimeout for initial health check (default: 5s)
	ConnectTimeout time.Duration

	// PoolSize for HTTP connection pool (default: 4)
	PoolSize int

	// SkipHealthCheck skips the availability and model checks (for testing)
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns sensible defaults
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		Dimensions:     0, // Auto-detect
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		PoolSize:       OllamaPoolSize,
	}
}

// ollamaEmbedRequest is the Ollama /api/embed request
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string for batch
}

// ollamaEmbedResponse is the Ollama /api/embed response
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaErrorResponse is the Ollama error payload
type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// ollamaModelListResponse is the Ollama /api/tags response
type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// ollamaModelInfo describes an installed model
type ollamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
