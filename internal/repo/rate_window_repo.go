package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/xxxsen/mtutor/internal/model"
)

// RateWindowRepo is the shared fixed window store. reset_at is unix milliseconds.
type RateWindowRepo struct {
	db *sql.DB
}

func NewRateWindowRepo(db *sql.DB) *RateWindowRepo {
	return &RateWindowRepo{db: db}
}

// Upsert performs the whole check-and-increment in one statement. The conditional
// DO UPDATE leaves up empty when the window is full and still open; the stored window
// is then read from the same statement snapshot and reported as a denial.
func (r *RateWindowRepo) Upsert(ctx context.Context, key string, now time.Time, window time.Duration, maxRequests int) (*model.RateWindow, bool, error) {
	const query = `
		WITH up AS (
			INSERT INTO rate_windows (key, count, reset_at) VALUES ($1, 1, $2)
			ON CONFLICT (key) DO UPDATE SET
				count = CASE WHEN rate_windows.reset_at < $3 THEN 1 ELSE rate_windows.count + 1 END,
				reset_at = CASE WHEN rate_windows.reset_at < $3 THEN EXCLUDED.reset_at ELSE rate_windows.reset_at END
			WHERE rate_windows.reset_at < $3 OR rate_windows.count < $4
			RETURNING count, reset_at
		)
		SELECT count, reset_at, TRUE FROM up
		UNION ALL
		SELECT count, reset_at, FALSE FROM rate_windows
		WHERE key = $1 AND NOT EXISTS (SELECT 1 FROM up)
	`
	nowMs := now.UnixMilli()
	var (
		count   int
		resetAt int64
		allowed bool
		err     error
	)
	// A row committed by a concurrent first request is invisible to the snapshot while
	// still blocking the insert; the retry sees it.
	for attempt := 0; attempt < 2; attempt++ {
		err = r.db.QueryRowContext(ctx, query, key, nowMs+window.Milliseconds(), nowMs, maxRequests).Scan(&count, &resetAt, &allowed)
		if !errors.Is(err, sql.ErrNoRows) {
			break
		}
	}
	if err != nil {
		return nil, false, err
	}
	return &model.RateWindow{Key: key, Count: count, ResetAt: time.UnixMilli(resetAt)}, allowed, nil
}

func (r *RateWindowRepo) Get(ctx context.Context, key string) (*model.RateWindow, error) {
	const query = `SELECT count, reset_at FROM rate_windows WHERE key = $1`
	var (
		count   int
		resetAt int64
	)
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&count, &resetAt); err != nil {
		return nil, err
	}
	return &model.RateWindow{Key: key, Count: count, ResetAt: time.UnixMilli(resetAt)}, nil
}

func (r *RateWindowRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM rate_windows WHERE reset_at < $1`
	res, err := r.db.ExecContext(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
