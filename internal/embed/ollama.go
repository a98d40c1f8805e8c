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

// OllamaEmbedder generates embeddings via a local Ollama server.
//
// The embedder performs no retries of its own. Failures come back as coded
// errors whose retryable flag tells the caller whether another attempt can
// help: HTTP 429 maps to rate_limited, 5xx to transient, 4xx to
// invalid_input, and connection failures to unavailable.
type OllamaEmbedder struct {
	config     OllamaConfig
	client     *http.Client
	dimensions int
	logger     *slog.Logger
}

// NewOllamaEmbedder creates an embedder backed by the Ollama API.
// Unless SkipHealthCheck is set it verifies the server is reachable,
// confirms the model is installed, and probes the embedding dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
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
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")

	e := &OllamaEmbedder{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.PoolSize,
				MaxIdleConnsPerHost: cfg.PoolSize,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		dimensions: cfg.Dimensions,
		logger:     slog.Default().With("component", "embed.ollama"),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		if err := e.checkServer(checkCtx); err != nil {
			return nil, err
		}
		if err := e.checkModel(checkCtx); err != nil {
			return nil, err
		}
	}

	// Probe the dimension with a one-token embed if it was not configured.
	if e.dimensions == 0 {
		vec, err := e.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
				fmt.Sprintf("failed to probe embedding dimension for %s", cfg.Model), err)
		}
		e.dimensions = len(vec)
	}

	e.logger.Debug("ollama embedder ready",
		"host", cfg.Host,
		"model", cfg.Model,
		"dimensions", e.dimensions)

	return e, nil
}

// checkServer verifies the Ollama server responds at all.
func (e *OllamaEmbedder) checkServer(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable, "invalid ollama host", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("ollama not reachable at %s", e.config.Host), err).
			WithSuggestion("start Ollama with 'ollama serve' or point embedding.ollama_host at a running instance")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("ollama health check returned %d", resp.StatusCode), nil)
	}
	return nil
}

// checkModel confirms the configured model is installed.
func (e *OllamaEmbedder) checkModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable, "invalid ollama host", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("ollama not reachable at %s", e.config.Host), err)
	}
	defer resp.Body.Close()

	var list ollamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable, "failed to parse ollama model list", err)
	}

	for _, m := range list.Models {
		if m.Name == e.config.Model || strings.TrimSuffix(m.Name, ":latest") == e.config.Model {
			return nil
		}
	}

	return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
		fmt.Sprintf("model %q is not installed", e.config.Model), nil).
		WithDetail("model", e.config.Model).
		WithSuggestion(fmt.Sprintf("run 'ollama pull %s'", e.config.Model))
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving input
// order. Blank texts produce zero vectors without an API call.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	// The API rejects empty input, so only non-blank texts are sent.
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

// embedRequest posts one batch to /api/embed and converts the response.
func (e *OllamaEmbedder) embedRequest(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: batch})
	if err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedInvalidInput, "failed to encode embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedUnavailable, "invalid ollama host", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("ollama request failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.classifyHTTPError(resp)
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedTransient, "failed to parse embed response", err)
	}

	if len(embedResp.Embeddings) != len(batch) {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedTransient,
			fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(embedResp.Embeddings)), nil)
	}

	vecs := make([][]float32, len(embedResp.Embeddings))
	for i, raw := range embedResp.Embeddings {
		if e.dimensions > 0 && len(raw) != e.dimensions {
			return nil, syncerrors.New(syncerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model returned %d dimensions, expected %d", len(raw), e.dimensions), nil).
				WithDetail("model", e.config.Model)
		}
		vec := make([]float32, len(raw))
		for j, v := range raw {
			vec[j] = float32(v)
		}
		vecs[i] = vec
	}

	return vecs, nil
}

// classifyHTTPError maps an Ollama error response onto the error taxonomy.
func (e *OllamaEmbedder) classifyHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var apiErr ollamaErrorResponse
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return syncerrors.New(syncerrors.ErrCodeEmbedRateLimited,
			fmt.Sprintf("ollama rate limited: %s", msg), nil)
	case resp.StatusCode >= 500:
		return syncerrors.New(syncerrors.ErrCodeEmbedTransient,
			fmt.Sprintf("ollama server error %d: %s", resp.StatusCode, msg), nil)
	case resp.StatusCode == http.StatusNotFound:
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("model %q not found: %s", e.config.Model, msg), nil).
			WithSuggestion(fmt.Sprintf("run 'ollama pull %s'", e.config.Model))
	default:
		return syncerrors.New(syncerrors.ErrCodeEmbedInvalidInput,
			fmt.Sprintf("ollama rejected request (%d): %s", resp.StatusCode, msg), nil)
	}
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks whether the Ollama server responds.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, e.config.ConnectTimeout)
	defer cancel()
	return e.checkServer(checkCtx) == nil
}

// Close releases pooled connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
