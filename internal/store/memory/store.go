// Package memory holds in-process implementations of the tracking store and
// recipient source. They back local runs (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bulkmail/internal/domain"
)

type Store struct {
	mu      sync.Mutex
	records map[string]domain.TrackingRecord
	byKey   map[string]string
}

func NewStore() *Store {
	return &Store{
		records: map[string]domain.TrackingRecord{},
		byKey:   map[string]string{},
	}
}

func (s *Store) Create(ctx context.Context, rec domain.TrackingRecord) (domain.TrackingRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.TrackingRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.ID]; ok {
		return existing, fmt.Errorf("%w: id %s", domain.ErrDuplicate, rec.ID)
	}
	if rec.DedupeKey != "" {
		if id, ok := s.byKey[rec.DedupeKey]; ok {
			return s.records[id], fmt.Errorf("%w: dedupe key %s", domain.ErrDuplicate, rec.DedupeKey)
		}
		s.byKey[rec.DedupeKey] = rec.ID
	}
	rec.Metadata = cloneMap(rec.Metadata)
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *Store) Update(ctx context.Context, id string, patch domain.TrackingPatch) (domain.TrackingRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.TrackingRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.TrackingRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if patch.Status != nil {
		if err := domain.CheckTransition(rec.Status, *patch.Status); err != nil {
			return domain.TrackingRecord{}, err
		}
	} else if rec.Status.Terminal() {
		return domain.TrackingRecord{}, fmt.Errorf("%w: record %s is %s", domain.ErrInvalidTransition, id, rec.Status)
	}
	patch.Apply(&rec)
	s.records[id] = rec
	return rec, nil
}

func (s *Store) Find(ctx context.Context, id string) (domain.TrackingRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.TrackingRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

// ByRecipient returns every record for a recipient, oldest first.
func (s *Store) ByRecipient(recipientID string) []domain.TrackingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TrackingRecord
	for _, rec := range s.records {
		if rec.RecipientID == recipientID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
