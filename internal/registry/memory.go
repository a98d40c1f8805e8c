package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry keeps records in process memory. It backs tests and
// dry runs; nothing survives a restart.
type MemoryRegistry struct {
	mu      sync.RWMutex
	stripes stripedMutex
	records map[string]RegistryRecord
	passes  []PassRecord
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]RegistryRecord)}
}

func (m *MemoryRegistry) Get(ctx context.Context, documentID string) (RegistryRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[documentID]
	if !ok {
		return RegistryRecord{}, false, nil
	}
	rec.ChunkIDs = copyStrings(rec.ChunkIDs)
	return rec, true, nil
}

func (m *MemoryRegistry) Diff(ctx context.Context, current map[string]string) (DiffResult, error) {
	m.mu.RLock()
	records := make([]RegistryRecord, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, RegistryRecord{
			DocumentID:  rec.DocumentID,
			Fingerprint: rec.Fingerprint,
		})
	}
	m.mu.RUnlock()

	return computeDiff(records, current), nil
}

func (m *MemoryRegistry) Commit(ctx context.Context, documentID, fingerprint string, chunkIDs []string) error {
	stripe := m.stripes.lock(documentID)
	defer stripe.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[documentID] = RegistryRecord{
		DocumentID:    documentID,
		Fingerprint:   fingerprint,
		ChunkIDs:      copyStrings(chunkIDs),
		LastIndexedAt: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryRegistry) Delete(ctx context.Context, documentID string) error {
	stripe := m.stripes.lock(documentID)
	defer stripe.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, documentID)
	return nil
}

func (m *MemoryRegistry) List(ctx context.Context) ([]RegistryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]RegistryRecord, 0, len(m.records))
	for _, rec := range m.records {
		rec.ChunkIDs = copyStrings(rec.ChunkIDs)
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].DocumentID < records[j].DocumentID
	})
	return records, nil
}

func (m *MemoryRegistry) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryRegistry) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]RegistryRecord)
	return nil
}

func (m *MemoryRegistry) AppendPass(ctx context.Context, pass PassRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passes = append(m.passes, pass)
	if len(m.passes) > maxStoredPasses {
		m.passes = m.passes[len(m.passes)-maxStoredPasses:]
	}
	return nil
}

func (m *MemoryRegistry) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.passes)
	if limit > n {
		limit = n
	}
	out := make([]PassRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.passes[i])
	}
	return out, nil
}

func (m *MemoryRegistry) Close() error {
	return nil
}

var (
	_ Registry    = (*MemoryRegistry)(nil)
	_ PassHistory = (*MemoryRegistry)(nil)
)
