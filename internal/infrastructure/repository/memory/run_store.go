// Package memory keeps review runs in process for deployments without a database.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

const DefaultCapacity = 200

// RunStore holds the most recent runs; the oldest run is evicted once the
// capacity is reached.
type RunStore struct {
	capacity int

	mu    sync.RWMutex
	runs  map[string]*domain.ReviewReport
	order []string
}

func NewRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RunStore{capacity: capacity, runs: make(map[string]*domain.ReviewReport)}
}

func (s *RunStore) SaveRun(_ context.Context, report *domain.ReviewReport) error {
	if report == nil || report.RunID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save run", errors.New("run id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[report.RunID]; !exists {
		s.order = append(s.order, report.RunID)
	}
	s.runs[report.RunID] = report
	for len(s.order) > s.capacity {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *RunStore) GetRun(_ context.Context, runID string) (*domain.ReviewReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.runs[runID]
	if !ok {
		return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("run %s", runID))
	}
	return report, nil
}

func (s *RunStore) ListRuns(_ context.Context, sessionID string, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	out := make([]domain.RunSummary, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.runs[s.order[i]]
		if r.SessionID != sessionID {
			continue
		}
		stats := r.Stats()
		out = append(out, domain.RunSummary{
			RunID:             r.RunID,
			Filename:          r.Filename,
			Paragraphs:        stats.TotalParagraphs,
			ParagraphsChanged: stats.ParagraphsChanged,
			RulesApplied:      stats.TotalRulesApplied,
			CreatedAt:         r.CreatedAt,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
