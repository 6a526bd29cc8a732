package issuance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry for tests and single-shot tools.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (r *MemoryRegistry) Register(_ context.Context, rec Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.records[rec.LicenseID]; ok {
		rec.RecordedAt = prev.RecordedAt
	} else {
		rec.RecordedAt = r.now().UTC()
	}
	r.records[rec.LicenseID] = rec
	return &rec, nil
}

func (r *MemoryRegistry) Get(_ context.Context, licenseID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[licenseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r *MemoryRegistry) ListByFingerprint(_ context.Context, fingerprint string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Fingerprint == fingerprint {
			out = append(out, rec)
		}
	}
	sortByIssue(out)
	return out, nil
}

func (r *MemoryRegistry) Count(_ context.Context, fingerprint string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.Fingerprint == fingerprint {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRegistry) Delete(_ context.Context, licenseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, licenseID)
	return nil
}

func (r *MemoryRegistry) Prune(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rec := range r.records {
		if rec.expiredBefore(cutoff) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRegistry) Close(_ context.Context) error {
	return nil
}

func sortByIssue(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].IssuedAt.Equal(records[j].IssuedAt) {
			return records[i].LicenseID < records[j].LicenseID
		}
		return records[i].IssuedAt.Before(records[j].IssuedAt)
	})
}
