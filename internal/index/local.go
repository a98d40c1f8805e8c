package index

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// Local index defaults
const (
	// DefaultLocalMetric is the similarity metric for local indexes.
	DefaultLocalMetric = "cosine"

	// defaultHNSWM is the graph connectivity parameter.
	defaultHNSWM = 16

	// defaultHNSWEfSearch is the search beam width.
	defaultHNSWEfSearch = 40
)

// LocalConfig configures the on-disk index.
type LocalConfig struct {
	// Path is the index file location. A ".meta" sidecar sits next to it.
	Path string

	// Metric is "cosine" or "l2" (default: cosine).
	Metric string

	// M and EfSearch tune the HNSW graph. Zero uses defaults.
	M        int
	EfSearch int
}

// localSidecar is the gob-encoded state that the graph file cannot carry:
// the id mappings, per-chunk metadata, and the index shape.
type localSidecar struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
	Metric     string
	Metadata   map[string]map[string]any
}

// LocalClient is a Client backed by an in-process HNSW graph persisted to
// a single file pair. It exists for offline work and for tests; the write
// path mirrors the remote client so passes behave identically against it.
//
// Deletion is lazy: removed chunks leave orphaned graph nodes behind that
// are filtered out of every read. Search over-fetches to compensate.
type LocalClient struct {
	mu     sync.RWMutex
	config LocalConfig
	graph  *hnsw.Graph[uint64]
	logger *slog.Logger

	idMap      map[string]uint64
	keyMap     map[uint64]string
	nextKey    uint64
	metadata   map[string]map[string]any
	dimensions int

	dirty  bool
	closed bool
}

// NewLocalClient creates a local index rooted at cfg.Path. EnsureIndex
// loads any persisted state and fixes the dimensionality.
func NewLocalClient(cfg LocalConfig) (*LocalClient, error) {
	if cfg.Path == "" {
		return nil, syncerrors.ConfigError("index.path must not be empty for the local provider", nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = DefaultLocalMetric
	}
	if cfg.M <= 0 {
		cfg.M = defaultHNSWM
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = defaultHNSWEfSearch
	}

	return &LocalClient{
		config:   cfg,
		graph:    newGraph(cfg),
		logger:   slog.Default().With("component", "index.local"),
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		metadata: make(map[string]map[string]any),
	}, nil
}

func newGraph(cfg LocalConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// EnsureIndex loads persisted state when present and pins the vector
// dimensionality. A persisted index with a different dimension is a
// hard mismatch, same as a remote index built for another model.
func (l *LocalClient) EnsureIndex(ctx context.Context, dimensions int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errClosed()
	}

	if _, err := os.Stat(l.config.Path + ".meta"); err == nil {
		if err := l.loadLocked(); err != nil {
			return err
		}
		if l.dimensions != dimensions {
			return syncerrors.New(syncerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("local index at %s has dimension %d, embedder produces %d",
					l.config.Path, l.dimensions, dimensions), nil).
				WithSuggestion("delete the index files or switch back to the original embedding model")
		}
		return nil
	}

	l.dimensions = dimensions
	return nil
}

// Upsert inserts or replaces entries. Replacement orphans the previous
// graph node rather than removing it.
func (l *LocalClient) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errClosed()
	}
	if l.dimensions == 0 {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"local index dimensions unknown, EnsureIndex must run first", nil)
	}

	for _, e := range entries {
		if len(e.Vector) != l.dimensions {
			return syncerrors.New(syncerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("entry %s has %d dimensions, index expects %d",
					e.ChunkID, len(e.Vector), l.dimensions), nil)
		}
	}

	for _, e := range entries {
		if existing, ok := l.idMap[e.ChunkID]; ok {
			delete(l.keyMap, existing)
			delete(l.idMap, e.ChunkID)
		}

		key := l.nextKey
		l.nextKey++

		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		if l.config.Metric != "l2" {
			normalizeInPlace(vec)
		}

		l.graph.Add(hnsw.MakeNode(key, vec))
		l.idMap[e.ChunkID] = key
		l.keyMap[key] = e.ChunkID
		l.metadata[e.ChunkID] = SanitizeMetadata(e.Metadata)
	}

	l.dirty = true
	return nil
}

// Delete removes chunks by id. Unknown ids are ignored.
func (l *LocalClient) Delete(ctx context.Context, chunkIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errClosed()
	}

	for _, id := range chunkIDs {
		if key, ok := l.idMap[id]; ok {
			delete(l.keyMap, key)
			delete(l.idMap, id)
			delete(l.metadata, id)
			l.dirty = true
		}
	}
	return nil
}

// DeleteByFilter removes every chunk whose metadata matches all filter
// pairs.
func (l *LocalClient) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return syncerrors.New(syncerrors.ErrCodeIndexRejected,
			"refusing delete with empty filter", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errClosed()
	}

	for id, meta := range l.metadata {
		if !matchesFilter(meta, filter) {
			continue
		}
		if key, ok := l.idMap[id]; ok {
			delete(l.keyMap, key)
			delete(l.idMap, id)
		}
		delete(l.metadata, id)
		l.dirty = true
	}
	return nil
}

// Query returns the topK nearest live entries. With a filter it
// over-fetches, then narrows; a small index may return fewer than topK
// matches.
func (l *LocalClient) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, errClosed()
	}
	if len(vector) != l.dimensions {
		return nil, syncerrors.New(syncerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, index expects %d",
				len(vector), l.dimensions), nil)
	}
	if l.graph.Len() == 0 || topK <= 0 {
		return []Match{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	if l.config.Metric != "l2" {
		normalizeInPlace(query)
	}

	// Orphaned nodes and filtered-out chunks consume result slots, so ask
	// the graph for more than topK.
	orphans := l.graph.Len() - len(l.idMap)
	fetchK := topK + orphans
	if len(filter) > 0 {
		fetchK = (topK + orphans) * 4
	}
	if fetchK > l.graph.Len() {
		fetchK = l.graph.Len()
	}

	nodes := l.graph.Search(query, fetchK)

	matches := make([]Match, 0, topK)
	for _, node := range nodes {
		id, live := l.keyMap[node.Key]
		if !live {
			continue
		}
		meta := l.metadata[id]
		if len(filter) > 0 && !matchesFilter(meta, filter) {
			continue
		}

		distance := l.graph.Distance(query, node.Value)
		matches = append(matches, Match{
			ChunkID:  id,
			Score:    scoreFromDistance(distance, l.config.Metric),
			Metadata: meta,
		})
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

// Fetch reports which ids are live in the index.
func (l *LocalClient) Fetch(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, errClosed()
	}

	present := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		if _, ok := l.idMap[id]; ok {
			present[id] = true
		}
	}
	return present, nil
}

// Stats returns live entry counts, not graph node counts.
func (l *LocalClient) Stats(ctx context.Context) (Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return Stats{}, errClosed()
	}
	return Stats{VectorCount: len(l.idMap), Dimensions: l.dimensions}, nil
}

// Name identifies the provider.
func (l *LocalClient) Name() string {
	return "local"
}

// Save persists the graph and sidecar atomically (temp file + rename).
func (l *LocalClient) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errClosed()
	}
	return l.saveLocked()
}

func (l *LocalClient) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(l.config.Path), 0o755); err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to create index directory", err)
	}

	tmpPath := l.config.Path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to create index file", err)
	}

	if err := l.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to export index graph", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to close index file", err)
	}
	if err := os.Rename(tmpPath, l.config.Path); err != nil {
		os.Remove(tmpPath)
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to move index file into place", err)
	}

	if err := l.saveSidecar(); err != nil {
		return err
	}

	l.dirty = false
	return nil
}

func (l *LocalClient) saveSidecar() error {
	metaPath := l.config.Path + ".meta"
	tmpPath := metaPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to create index sidecar", err)
	}

	sidecar := localSidecar{
		IDMap:      l.idMap,
		NextKey:    l.nextKey,
		Dimensions: l.dimensions,
		Metric:     l.config.Metric,
		Metadata:   l.metadata,
	}
	if err := gob.NewEncoder(file).Encode(sidecar); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to encode index sidecar", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to close index sidecar", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to move index sidecar into place", err)
	}
	return nil
}

func (l *LocalClient) loadLocked() error {
	metaFile, err := os.Open(l.config.Path + ".meta")
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to open index sidecar", err)
	}
	defer metaFile.Close()

	var sidecar localSidecar
	if err := gob.NewDecoder(metaFile).Decode(&sidecar); err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to decode index sidecar", err).
			WithSuggestion("the index files may be corrupt, delete them and reindex")
	}

	graphFile, err := os.Open(l.config.Path)
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to open index file", err)
	}
	defer graphFile.Close()

	// Import needs an io.ByteReader.
	if err := l.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"failed to import index graph", err).
			WithSuggestion("the index files may be corrupt, delete them and reindex")
	}

	l.idMap = sidecar.IDMap
	l.nextKey = sidecar.NextKey
	l.dimensions = sidecar.Dimensions
	l.metadata = sidecar.Metadata
	if l.idMap == nil {
		l.idMap = make(map[string]uint64)
	}
	if l.metadata == nil {
		l.metadata = make(map[string]map[string]any)
	}
	l.keyMap = make(map[uint64]string, len(l.idMap))
	for id, key := range l.idMap {
		l.keyMap[key] = id
	}

	l.logger.Debug("loaded local index",
		"path", l.config.Path,
		"entries", len(l.idMap),
		"graph_nodes", l.graph.Len(),
		"dimensions", l.dimensions)
	return nil
}

// Close saves pending changes and releases the graph.
func (l *LocalClient) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	var err error
	if l.dirty {
		err = l.saveLocked()
	}
	l.closed = true
	l.graph = nil
	return err
}

func errClosed() error {
	return syncerrors.New(syncerrors.ErrCodeIndexUnavailable, "index client is closed", nil)
}

// matchesFilter reports whether metadata satisfies every filter pair.
// Values compare by string form since filters are string-valued.
func matchesFilter(meta map[string]any, filter Filter) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if s, isString := got.(string); isString {
			if s != want {
				return false
			}
			continue
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// normalizeInPlace scales a vector to unit length. Zero vectors pass
// through unchanged.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// scoreFromDistance maps a distance to a 0..1 similarity score. Cosine
// distance spans 0..2, l2 spans 0..inf.
func scoreFromDistance(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
