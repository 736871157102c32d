// Package history provides per-subject sample frequency calculation.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/behaviorsec/kestrel/internal/domain"
)

// Service calculates how often a subject has submitted samples.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetSampleCount returns the number of samples for a subject within a time
// window. This is the HistoryGetter function signature expected by the
// policy engine.
func (s *Service) GetSampleCount(ctx context.Context, tenantID, subjectID string, windowSecs int) (int64, error) {
	if tenantID == "" || subjectID == "" {
		return 0, fmt.Errorf("tenantID and subjectID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)
	return s.repo.CountSamplesBySubject(ctx, tenantID, subjectID, since)
}

// RecordSample bumps the sliding-window counter for a subject. The counter
// is a cache-side fast path; the repository stays the source of truth.
func (s *Service) RecordSample(ctx context.Context, tenantID, subjectID string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "history:"+subjectID, window)
}

// GetHistoryGetter returns a HistoryGetter function for the policy engine.
func (s *Service) GetHistoryGetter() func(ctx context.Context, tenantID, subjectID string, windowSecs int) (int64, error) {
	return s.GetSampleCount
}
