package store

import (
	"context"
	"sort"
	"sync"

	"github.com/matthewbaird/reportcore/internal/types"
)

// MemoryStore implements Store using in-memory slices.
// Intended for demos and testing.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]types.Document // report id → documents
	pos  map[string]int              // document id → index within its report
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]types.Document),
		pos:  make(map[string]int),
	}
}

func (s *MemoryStore) WriteDocuments(_ context.Context, docs []types.Document) error {
	for _, d := range docs {
		if err := validate(d); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		key := d.ReportID + "/" + d.ID
		if i, ok := s.pos[key]; ok {
			s.docs[d.ReportID][i] = d
			continue
		}
		s.pos[key] = len(s.docs[d.ReportID])
		s.docs[d.ReportID] = append(s.docs[d.ReportID], d)
	}
	return nil
}

// ListDocuments returns matching documents oldest first.
func (s *MemoryStore) ListDocuments(_ context.Context, reportID string, opts ListOptions) ([]types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []types.Document
	for _, d := range s.docs[reportID] {
		if opts.match(d) {
			matched = append(matched, d)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}
