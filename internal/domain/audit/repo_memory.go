package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-process audit store for development and tests.
// Single-key lookups go through per-user, per-patient and per-action indexes.
type MemoryRepository struct {
	mu        sync.RWMutex
	entries   []*LogData
	byUser    map[string][]int
	byPatient map[string][]int
	byAction  map[Action][]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byUser:    make(map[string][]int),
		byPatient: make(map[string][]int),
		byAction:  make(map[Action][]int),
	}
}

func (m *MemoryRepository) Save(_ context.Context, entry *LogData) error {
	cp := *entry
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.entries)
	m.entries = append(m.entries, &cp)
	m.byUser[cp.UserID] = append(m.byUser[cp.UserID], idx)
	if cp.PatientID != "" {
		m.byPatient[cp.PatientID] = append(m.byPatient[cp.PatientID], idx)
	}
	m.byAction[cp.Action] = append(m.byAction[cp.Action], idx)
	return nil
}

func (m *MemoryRepository) Search(_ context.Context, c SearchCriteria) ([]*LogData, int, error) {
	c.applyDefaults()

	m.mu.RLock()
	var matched []*LogData
	for _, i := range m.candidates(c) {
		e := m.entries[i]
		if c.matches(e) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	start := c.Offset
	if start > total {
		start = total
	}
	end := start + c.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// candidates narrows the scan using the most selective index available.
// Callers must hold the read lock.
func (m *MemoryRepository) candidates(c SearchCriteria) []int {
	switch {
	case c.PatientID != "":
		return m.byPatient[c.PatientID]
	case c.UserID != "":
		return m.byUser[c.UserID]
	case c.Action != "":
		return m.byAction[c.Action]
	}
	all := make([]int, len(m.entries))
	for i := range all {
		all[i] = i
	}
	return all
}

// Len returns the number of stored entries.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
