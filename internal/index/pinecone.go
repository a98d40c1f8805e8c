package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// Pinecone API constants
const (
	// DefaultPineconeControlPlane is the control plane endpoint for index
	// management.
	DefaultPineconeControlPlane = "https://api.pinecone.io"

	// pineconeAPIVersion is sent with every request.
	pineconeAPIVersion = "2025-01"

	// DefaultPineconeTimeout bounds one data plane request.
	DefaultPineconeTimeout = 30 * time.Second

	// indexReadyTimeout bounds the wait for a newly created index.
	indexReadyTimeout = 2 * time.Minute

	// indexReadyPollInterval is the wait between readiness probes.
	indexReadyPollInterval = 2 * time.Second
)

// PineconeConfig configures the Pinecone client.
type PineconeConfig struct {
	// APIKey authenticates all requests. Required.
	APIKey string

	// IndexName is the index to manage and write to. Required.
	IndexName string

	// Namespace scopes all vector operations. Empty uses the default
	// namespace.
	Namespace string

	// Cloud and Region select the serverless home for a created index.
	Cloud  string
	Region string

	// Metric is the similarity metric for a created index (default: cosine).
	Metric string

	// BatchSize is the number of vectors per upsert request (default: 100).
	BatchSize int

	// Timeout for API requests (default: 30s).
	Timeout time.Duration

	// ControlPlaneURL overrides the control plane endpoint (for tests).
	ControlPlaneURL string

	// Host overrides data plane host discovery (for tests).
	Host string
}

// pineconeIndexDescription is the control plane describe/create response.
type pineconeIndexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// pineconeCreateIndexRequest is the control plane create request.
type pineconeCreateIndexRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Spec      struct {
		Serverless struct {
			Cloud  string `json:"cloud"`
			Region string `json:"region"`
		} `json:"serverless"`
	} `json:"spec"`
}

// pineconeVector is the wire form of one entry.
type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// pineconeUpsertRequest is the data plane upsert request.
type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

// pineconeDeleteRequest is the data plane delete request. Exactly one of
// IDs or Filter is set.
type pineconeDeleteRequest struct {
	IDs       []string       `json:"ids,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
	DeleteAll bool           `json:"deleteAll,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

// pineconeQueryRequest is the data plane query request.
type pineconeQueryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	Namespace       string         `json:"namespace,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

// pineconeQueryResponse is the data plane query response.
type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float32        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

// pineconeFetchResponse is the data plane fetch response.
type pineconeFetchResponse struct {
	Vectors map[string]struct {
		ID string `json:"id"`
	} `json:"vectors"`
}

// pineconeStatsResponse is the describe_index_stats response.
type pineconeStatsResponse struct {
	TotalVectorCount int `json:"totalVectorCount"`
	Dimension        int `json:"dimension"`
}

// pineconeErrorResponse is the error envelope.
type pineconeErrorResponse struct {
	Message string `json:"message"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// PineconeClient talks to a Pinecone serverless index over REST. Index
// management goes through the control plane; vector operations go to the
// per-index data plane host discovered by EnsureIndex.
//
// The client classifies failures and never retries internally; the
// caller's retry combinator and circuit breaker own that policy.
type PineconeClient struct {
	config PineconeConfig
	client *http.Client
	host   string
	logger *slog.Logger
}

// NewPineconeClient creates a client. EnsureIndex must run before vector
// operations unless the config carries an explicit Host.
func NewPineconeClient(cfg PineconeConfig) (*PineconeClient, error) {
	if cfg.APIKey == "" {
		return nil, syncerrors.New(syncerrors.ErrCodeMissingCredentials,
			"pinecone api key is not set", nil).
			WithSuggestion("set PINECONE_API_KEY in the environment or a .env file")
	}
	if cfg.IndexName == "" {
		return nil, syncerrors.ConfigError("index.name must not be empty", nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cosine"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultUpsertBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPineconeTimeout
	}
	if cfg.ControlPlaneURL == "" {
		cfg.ControlPlaneURL = DefaultPineconeControlPlane
	}
	cfg.ControlPlaneURL = strings.TrimRight(cfg.ControlPlaneURL, "/")

	return &PineconeClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		host:   normalizeHost(cfg.Host),
		logger: slog.Default().With("component", "index.pinecone"),
	}, nil
}

// normalizeHost ensures the data plane host carries a scheme. The control
// plane reports bare hostnames.
func normalizeHost(host string) string {
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	return "https://" + strings.TrimRight(host, "/")
}

// EnsureIndex creates the index if absent (serverless spec from config)
// and waits until it is ready. When the index exists its dimension must
// match or the embedder and index disagree about vector size.
func (p *PineconeClient) EnsureIndex(ctx context.Context, dimensions int) error {
	desc, err := p.describeIndex(ctx)
	if err != nil {
		var se *syncerrors.SyncError
		if !errors.As(err, &se) || se.Code != syncerrors.ErrCodeIndexNotFound {
			return err
		}

		p.logger.Info("creating index",
			"index", p.config.IndexName,
			"dimensions", dimensions,
			"metric", p.config.Metric,
			"cloud", p.config.Cloud,
			"region", p.config.Region)

		if err := p.createIndex(ctx, dimensions); err != nil {
			return err
		}
		desc, err = p.waitForReady(ctx)
		if err != nil {
			return err
		}
	}

	if desc.Dimension != dimensions {
		return syncerrors.New(syncerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index %q has dimension %d, embedder produces %d",
				p.config.IndexName, desc.Dimension, dimensions), nil).
			WithSuggestion("change embedding.model/dimensions or recreate the index")
	}

	p.host = normalizeHost(desc.Host)
	if p.host == "" {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			fmt.Sprintf("index %q reports no data plane host", p.config.IndexName), nil)
	}
	return nil
}

// describeIndex fetches the index description from the control plane.
func (p *PineconeClient) describeIndex(ctx context.Context) (*pineconeIndexDescription, error) {
	url := p.config.ControlPlaneURL + "/indexes/" + p.config.IndexName
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeIndexUnavailable, "invalid control plane url", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, syncerrors.New(syncerrors.ErrCodeIndexNotFound,
			fmt.Sprintf("index %q does not exist", p.config.IndexName), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyHTTPError(resp)
	}

	var desc pineconeIndexDescription
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeIndexTransient, "failed to parse index description", err)
	}
	return &desc, nil
}

// createIndex issues the control plane create call.
func (p *PineconeClient) createIndex(ctx context.Context, dimensions int) error {
	reqBody := pineconeCreateIndexRequest{
		Name:      p.config.IndexName,
		Dimension: dimensions,
		Metric:    strings.ToLower(p.config.Metric),
	}
	reqBody.Spec.Serverless.Cloud = p.config.Cloud
	reqBody.Spec.Serverless.Region = p.config.Region

	body, err := json.Marshal(reqBody)
	if err != nil {
		return syncerrors.InternalError("failed to encode create index request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.ControlPlaneURL+"/indexes", bytes.NewReader(body))
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable, "invalid control plane url", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	// 409 means another pass created it first, which is fine.
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return p.classifyHTTPError(resp)
	}
	return nil
}

// waitForReady polls the control plane until the index reports ready.
func (p *PineconeClient) waitForReady(ctx context.Context) (*pineconeIndexDescription, error) {
	waitCtx, cancel := context.WithTimeout(ctx, indexReadyTimeout)
	defer cancel()

	for {
		desc, err := p.describeIndex(waitCtx)
		if err == nil && desc.Status.Ready {
			return desc, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, syncerrors.New(syncerrors.ErrCodeIndexTimeout,
				fmt.Sprintf("index %q not ready after %s", p.config.IndexName, indexReadyTimeout), waitCtx.Err())
		case <-time.After(indexReadyPollInterval):
		}
	}
}

// Upsert writes entries in batches of BatchSize.
func (p *PineconeClient) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := p.requireHost(); err != nil {
		return err
	}

	for start := 0; start < len(entries); start += p.config.BatchSize {
		end := start + p.config.BatchSize
		if end > len(entries) {
			end = len(entries)
		}

		reqBody := pineconeUpsertRequest{Namespace: p.config.Namespace}
		for _, e := range entries[start:end] {
			reqBody.Vectors = append(reqBody.Vectors, pineconeVector{
				ID:       e.ChunkID,
				Values:   e.Vector,
				Metadata: SanitizeMetadata(e.Metadata),
			})
		}

		if err := p.dataPlanePost(ctx, "/vectors/upsert", reqBody, nil); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes ids in batches. Unknown ids are ignored by the service.
func (p *PineconeClient) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if err := p.requireHost(); err != nil {
		return err
	}

	for start := 0; start < len(chunkIDs); start += DefaultDeleteBatchSize {
		end := start + DefaultDeleteBatchSize
		if end > len(chunkIDs) {
			end = len(chunkIDs)
		}

		reqBody := pineconeDeleteRequest{
			IDs:       chunkIDs[start:end],
			Namespace: p.config.Namespace,
		}
		if err := p.dataPlanePost(ctx, "/vectors/delete", reqBody, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByFilter removes every entry whose metadata matches the filter.
func (p *PineconeClient) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return syncerrors.New(syncerrors.ErrCodeIndexRejected,
			"refusing delete with empty filter", nil)
	}
	if err := p.requireHost(); err != nil {
		return err
	}

	reqBody := pineconeDeleteRequest{
		Filter:    filterToPinecone(filter),
		Namespace: p.config.Namespace,
	}
	return p.dataPlanePost(ctx, "/vectors/delete", reqBody, nil)
}

// Query returns the topK nearest entries.
func (p *PineconeClient) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := p.requireHost(); err != nil {
		return nil, err
	}

	reqBody := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		Namespace:       p.config.Namespace,
		IncludeMetadata: true,
	}
	if len(filter) > 0 {
		reqBody.Filter = filterToPinecone(filter)
	}

	var queryResp pineconeQueryResponse
	if err := p.dataPlanePost(ctx, "/query", reqBody, &queryResp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(queryResp.Matches))
	for _, m := range queryResp.Matches {
		matches = append(matches, Match{ChunkID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

// Fetch reports which ids exist in the index.
func (p *PineconeClient) Fetch(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	present := make(map[string]bool, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return present, nil
	}
	if err := p.requireHost(); err != nil {
		return nil, err
	}

	// The fetch endpoint takes ids as query parameters; keep the URL
	// bounded by batching.
	const fetchBatch = 100
	for start := 0; start < len(chunkIDs); start += fetchBatch {
		end := start + fetchBatch
		if end > len(chunkIDs) {
			end = len(chunkIDs)
		}

		var sb strings.Builder
		sb.WriteString(p.host + "/vectors/fetch?")
		for i, id := range chunkIDs[start:end] {
			if i > 0 {
				sb.WriteString("&")
			}
			sb.WriteString("ids=" + id)
		}
		if p.config.Namespace != "" {
			sb.WriteString("&namespace=" + p.config.Namespace)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sb.String(), nil)
		if err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeIndexUnavailable, "invalid data plane url", err)
		}
		p.setHeaders(req)

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, p.classifyTransportError(ctx, err)
		}

		var fetchResp pineconeFetchResponse
		if resp.StatusCode != http.StatusOK {
			err := p.classifyHTTPError(resp)
			resp.Body.Close()
			return nil, err
		}
		if err := json.NewDecoder(resp.Body).Decode(&fetchResp); err != nil {
			resp.Body.Close()
			return nil, syncerrors.New(syncerrors.ErrCodeIndexTransient, "failed to parse fetch response", err)
		}
		resp.Body.Close()

		for id := range fetchResp.Vectors {
			present[id] = true
		}
	}
	return present, nil
}

// Stats returns the index contents.
func (p *PineconeClient) Stats(ctx context.Context) (Stats, error) {
	if err := p.requireHost(); err != nil {
		return Stats{}, err
	}

	var statsResp pineconeStatsResponse
	if err := p.dataPlanePost(ctx, "/describe_index_stats", struct{}{}, &statsResp); err != nil {
		return Stats{}, err
	}
	return Stats{VectorCount: statsResp.TotalVectorCount, Dimensions: statsResp.Dimension}, nil
}

// Name identifies the provider.
func (p *PineconeClient) Name() string {
	return "pinecone"
}

// Close releases pooled connections.
func (p *PineconeClient) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// requireHost guards data plane calls before EnsureIndex ran.
func (p *PineconeClient) requireHost() error {
	if p.host == "" {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"data plane host unknown, EnsureIndex must run first", nil)
	}
	return nil
}

// dataPlanePost posts a JSON body to the data plane and optionally
// decodes the response into out.
func (p *PineconeClient) dataPlanePost(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return syncerrors.InternalError("failed to encode index request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(raw))
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable, "invalid data plane url", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.classifyHTTPError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return syncerrors.New(syncerrors.ErrCodeIndexTransient, "failed to parse index response", err)
		}
	}
	return nil
}

// setHeaders adds authentication and version headers.
func (p *PineconeClient) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", p.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", pineconeAPIVersion)
}

// classifyTransportError maps connection-level failures.
func (p *PineconeClient) classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return syncerrors.New(syncerrors.ErrCodeIndexTimeout,
			fmt.Sprintf("index request timed out: %v", err), err)
	}
	return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
		fmt.Sprintf("index not reachable: %v", err), err)
}

// classifyHTTPError maps an error response onto the error taxonomy.
func (p *PineconeClient) classifyHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var apiErr pineconeErrorResponse
	if json.Unmarshal(raw, &apiErr) == nil {
		if apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		} else if apiErr.Message != "" {
			msg = apiErr.Message
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return syncerrors.New(syncerrors.ErrCodeIndexQuota,
			fmt.Sprintf("index quota exhausted: %s", msg), nil).
			WithSuggestion("lower index.rate_per_sec or reindex.workers")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			fmt.Sprintf("index authentication failed: %s", msg), nil).
			WithSuggestion("check PINECONE_API_KEY")
	case resp.StatusCode == http.StatusNotFound:
		return syncerrors.New(syncerrors.ErrCodeIndexNotFound,
			fmt.Sprintf("index %q not found: %s", p.config.IndexName, msg), nil)
	case resp.StatusCode >= 500:
		return syncerrors.New(syncerrors.ErrCodeIndexTransient,
			fmt.Sprintf("index server error %d: %s", resp.StatusCode, msg), nil)
	default:
		return syncerrors.New(syncerrors.ErrCodeIndexRejected,
			fmt.Sprintf("index rejected request (%d): %s", resp.StatusCode, msg), nil)
	}
}

// filterToPinecone renders an equality filter in the service's syntax.
func filterToPinecone(filter Filter) map[string]any {
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = map[string]any{"$eq": v}
	}
	return out
}
