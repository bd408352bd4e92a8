package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/model"
)

const (
	DefaultMaxRequests = 30
	DefaultWindow      = 60 * time.Second
)

// WindowStore applies one fixed window step for key atomically:
//   - no window, or the window expired before now: count=1, reset_at=now+window, allowed
//   - count >= maxRequests: denied, nothing written
//   - otherwise: count+1, allowed
//
// The returned window reflects the state after the step.
type WindowStore interface {
	Upsert(ctx context.Context, key string, now time.Time, window time.Duration, maxRequests int) (*model.RateWindow, bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	MaxRequests int
	Window      time.Duration
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the number of whole seconds until the window resets, rounded up.
func (r *Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

type Limiter struct {
	store WindowStore
	cfg   Config
	now   func() time.Time
}

func New(store WindowStore, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Limiter{store: store, cfg: cfg, now: time.Now}
}

// Enabled is false when MaxRequests is not positive; such a limiter admits everything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cfg.MaxRequests > 0 && l.store != nil
}

func (l *Limiter) Now() time.Time {
	return l.now()
}

// Check consumes one request from key's window. Store failures admit the request.
func (l *Limiter) Check(ctx context.Context, key string) *Result {
	now := l.now()
	if !l.Enabled() {
		return &Result{Allowed: true, Remaining: math.MaxInt32, ResetAt: now.Add(l.cfg.Window)}
	}
	win, allowed, err := l.store.Upsert(ctx, key, now, l.cfg.Window, l.cfg.MaxRequests)
	if err != nil {
		logutil.GetLogger(ctx).Error("rate limit store failed, allowing request",
			zap.String("key", key),
			zap.Error(err),
		)
		return &Result{Allowed: true, Remaining: l.cfg.MaxRequests, ResetAt: now.Add(l.cfg.Window)}
	}
	if !allowed {
		return &Result{Allowed: false, Remaining: 0, ResetAt: win.ResetAt}
	}
	remaining := l.cfg.MaxRequests - win.Count
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: true, Remaining: remaining, ResetAt: win.ResetAt}
}

// Cleanup removes windows that expired before now.
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	if l == nil || l.store == nil {
		return 0, nil
	}
	return l.store.DeleteExpired(ctx, l.now())
}
