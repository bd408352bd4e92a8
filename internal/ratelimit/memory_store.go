package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/xxxsen/mtutor/internal/model"
)

const defaultSweepInterval = 5 * time.Minute

// MemoryStore keeps windows in process. It is only correct for a single instance.
type MemoryStore struct {
	mu            sync.Mutex
	windows       map[string]*model.RateWindow
	sweepInterval time.Duration
	lastSweep     time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:       make(map[string]*model.RateWindow),
		sweepInterval: defaultSweepInterval,
	}
}

func (s *MemoryStore) Upsert(_ context.Context, key string, now time.Time, window time.Duration, maxRequests int) (*model.RateWindow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweepLocked(now)

	win, ok := s.windows[key]
	if !ok || win.ResetAt.Before(now) {
		win = &model.RateWindow{Key: key, Count: 1, ResetAt: now.Add(window)}
		s.windows[key] = win
		return copyWindow(win), true, nil
	}
	if win.Count >= maxRequests {
		return copyWindow(win), false, nil
	}
	win.Count++
	return copyWindow(win), true, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupExpiredLocked(now), nil
}

func (s *MemoryStore) maybeSweepLocked(now time.Time) {
	if s.sweepInterval <= 0 {
		return
	}
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < s.sweepInterval {
		return
	}
	s.cleanupExpiredLocked(now)
}

func (s *MemoryStore) cleanupExpiredLocked(now time.Time) int64 {
	var removed int64
	for key, win := range s.windows {
		if win.ResetAt.Before(now) {
			delete(s.windows, key)
			removed++
		}
	}
	s.lastSweep = now
	return removed
}

func copyWindow(w *model.RateWindow) *model.RateWindow {
	c := *w
	return &c
}
