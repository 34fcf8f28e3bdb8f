package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

// RunStore keeps run records in memory for API lookups.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]profile.RunRecord
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]profile.RunRecord)}
}

// RecordRun stores or replaces a run record.
func (s *RunStore) RecordRun(_ context.Context, record profile.RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[record.ID] = cloneRecord(record)
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (profile.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.runs[id]
	if !ok {
		return profile.RunRecord{}, fmt.Errorf("get run %q: %w", id, profile.ErrRunNotFound)
	}
	return cloneRecord(record), nil
}

// ListRuns returns up to limit runs, most recent first. A non-positive
// limit returns every run.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]profile.RunRecord, error) {
	s.mu.RLock()
	out := make([]profile.RunRecord, 0, len(s.runs))
	for _, record := range s.runs {
		out = append(out, cloneRecord(record))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRecord(record profile.RunRecord) profile.RunRecord {
	record.FailedSources = append([]profile.SourceFailure(nil), record.FailedSources...)
	return record
}
