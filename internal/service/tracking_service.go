package service

import (
	"context"
	"time"

	"github.com/nexusmail/nexus-mailer/pkg/logger"
)

type trackingRepository interface {
	MarkOpened(ctx context.Context, token string, at time.Time) (bool, error)
	MarkClicked(ctx context.Context, token string, at time.Time) (bool, error)
}

type trackingCache interface {
	LookupTrackingToken(ctx context.Context, token string) (int64, error)
}

type TrackingService struct {
	repo  trackingRepository
	cache trackingCache
	now   func() time.Time
}

// NewTrackingService builds the open/click recording service. cache may be
// nil when no valkey instance is configured.
func NewTrackingService(repo trackingRepository, cache trackingCache) *TrackingService {
	return &TrackingService{repo: repo, cache: cache, now: time.Now}
}

// RegisterOpen records the first open for the token. It reports whether this
// call was the one that recorded it; repeat opens return false with no error.
func (s *TrackingService) RegisterOpen(ctx context.Context, token string) (bool, error) {
	s.warmLookup(ctx, token)

	recorded, err := s.repo.MarkOpened(ctx, token, s.now())
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// RegisterClick records a click for the token. A click implies an open, so
// the repository stamps opened_at as well when it is still unset.
func (s *TrackingService) RegisterClick(ctx context.Context, token string) (bool, error) {
	s.warmLookup(ctx, token)

	recorded, err := s.repo.MarkClicked(ctx, token, s.now())
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// warmLookup consults the token cache so unknown tokens show up in the debug
// log. The write path never depends on it.
func (s *TrackingService) warmLookup(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	id, err := s.cache.LookupTrackingToken(ctx, token)
	if err != nil {
		logger.Warnf("tracking token cache lookup failed: %v", err)
		return
	}
	if id == 0 {
		logger.Debugf("tracking token %s not present in cache", token)
	}
}
