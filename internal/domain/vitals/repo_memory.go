package vitals

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps vitals in process memory. Used in development mode
// and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	byPatient map[string][]*RecordedVitals
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byPatient: make(map[string][]*RecordedVitals)}
}

func (m *MemoryRepository) Save(_ context.Context, v *RecordedVitals) error {
	cp := *v
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPatient[v.PatientID] = append(m.byPatient[v.PatientID], &cp)
	return nil
}

// ListByPatient returns newest first.
func (m *MemoryRepository) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*RecordedVitals, int, error) {
	all := m.snapshot(patientID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].RecordedAt.After(all[j].RecordedAt) })

	total := len(all)
	if offset >= total {
		return []*RecordedVitals{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepository) Latest(ctx context.Context, patientID string) (*RecordedVitals, error) {
	items, _, _ := m.ListByPatient(ctx, patientID, 1, 0)
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

func (m *MemoryRepository) ListByDateRange(_ context.Context, patientID string, from, to time.Time) ([]*RecordedVitals, error) {
	var out []*RecordedVitals
	for _, v := range m.snapshot(patientID) {
		if !v.RecordedAt.Before(from) && !v.RecordedAt.After(to) {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (m *MemoryRepository) snapshot(patientID string) []*RecordedVitals {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.byPatient[patientID]
	out := make([]*RecordedVitals, len(src))
	for i, v := range src {
		cp := *v
		out[i] = &cp
	}
	return out
}

// PatientDirectory is an in-memory PatientLookup.
type PatientDirectory struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewPatientDirectory(patientIDs ...string) *PatientDirectory {
	d := &PatientDirectory{ids: make(map[string]struct{}, len(patientIDs))}
	for _, id := range patientIDs {
		d.ids[id] = struct{}{}
	}
	return d
}

func (d *PatientDirectory) Add(patientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[patientID] = struct{}{}
}

func (d *PatientDirectory) Exists(_ context.Context, patientID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.ids[patientID]
	return ok, nil
}

func (d *PatientDirectory) Register(_ context.Context, patientID string) error {
	d.Add(patientID)
	return nil
}
