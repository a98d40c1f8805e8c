package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// OpenAI API constants
const (
	// DefaultOpenAIBaseURL is the OpenAI API endpoint
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// DefaultOpenAIModel is the default embedding model
	DefaultOpenAIModel = "text-embedding-3-small"
)

// openAIModelDimensions maps known embedding models to their output size.
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embedder
type OpenAIConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1).
	// Override for Azure or compatible proxies.
	BaseURL string

	// Model is the embedding model (default: text-embedding-3-small)
	Model string

	// Dimensions overrides the model's native output size (0 = native)
	Dimensions int

	// BatchSize for batch embedding requests (default: 32)
	BatchSize int

	// Timeout for API requests (default: 60s)
	Timeout time.Duration
}

// openAIEmbedRequest is the /embeddings request body
type openAIEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

// openAIEmbedResponse is the /embeddings response body
type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIErrorResponse is the error envelope
type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
// Like the other providers it performs no internal retries.
type OpenAIEmbedder struct {
	config     OpenAIConfig
	client     *http.Client
	dimensions int
	logger     *slog.Logger
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			"openai api key is not set", nil).
			WithSuggestion("set OPENAI_API_KEY in the environment or a .env file")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	dims := cfg.Dimensions
	if dims == 0 {
		dims = openAIModelDimensions[cfg.Model]
	}
	if dims == 0 {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedInvalidInput,
			fmt.Sprintf("unknown model %q, set embedding.dimensions explicitly", cfg.Model), nil)
	}

	return &OpenAIEmbedder{
		config:     cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		dimensions: dims,
		logger:     slog.Default().With("component", "embed.openai"),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving input
// order. Blank texts produce zero vectors without an API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	nonBlank := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dimensions)
			continue
		}
		nonBlank = append(nonBlank, text)
		positions = append(positions, i)
	}

	for start := 0; start < len(nonBlank); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(nonBlank) {
			end = len(nonBlank)
		}

		vecs, err := e.embedRequest(ctx, nonBlank[start:end])
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			results[positions[start+j]] = vec
		}
	}

	return results, nil
}

// embedRequest posts one batch to /embeddings and reassembles the
// response by index, since the API does not guarantee ordering.
func (e *OpenAIEmbedder) embedRequest(ctx context.Context, batch []string) ([][]float32, error) {
	reqBody := openAIEmbedRequest{
		Input:          batch,
		Model:          e.config.Model,
		EncodingFormat: "float",
	}
	if e.config.Dimensions > 0 {
		reqBody.Dimensions = e.config.Dimensions
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedInvalidInput, "failed to encode embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedUnavailable, "invalid openai base url", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("openai request failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.classifyHTTPError(resp)
	}

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedTransient, "failed to parse embed response", err)
	}

	if len(embedResp.Data) != len(batch) {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedTransient,
			fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(embedResp.Data)), nil)
	}

	vecs := make([][]float32, len(batch))
	for _, item := range embedResp.Data {
		if item.Index < 0 || item.Index >= len(batch) {
			return nil, syncerrors.New(syncerrors.ErrCodeEmbedTransient,
				fmt.Sprintf("embedding index %d out of range", item.Index), nil)
		}
		if len(item.Embedding) != e.dimensions {
			return nil, syncerrors.New(syncerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model returned %d dimensions, expected %d", len(item.Embedding), e.dimensions), nil).
				WithDetail("model", e.config.Model)
		}
		vecs[item.Index] = item.Embedding
	}
	for i, vec := range vecs {
		if vec == nil {
			return nil, syncerrors.New(syncerrors.ErrCodeEmbedTransient,
				fmt.Sprintf("no embedding returned for input %d", i), nil)
		}
	}

	return vecs, nil
}

// classifyHTTPError maps an OpenAI error response onto the error taxonomy.
func (e *OpenAIEmbedder) classifyHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var apiErr openAIErrorResponse
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return syncerrors.New(syncerrors.ErrCodeEmbedRateLimited,
			fmt.Sprintf("openai rate limited: %s", msg), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("openai authentication failed: %s", msg), nil).
			WithSuggestion("check OPENAI_API_KEY")
	case resp.StatusCode >= 500:
		return syncerrors.New(syncerrors.ErrCodeEmbedTransient,
			fmt.Sprintf("openai server error %d: %s", resp.StatusCode, msg), nil)
	default:
		return syncerrors.New(syncerrors.ErrCodeEmbedInvalidInput,
			fmt.Sprintf("openai rejected request (%d): %s", resp.StatusCode, msg), nil)
	}
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks whether the API accepts the configured key.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, e.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases pooled connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
