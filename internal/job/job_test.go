package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mtutor/internal/service"
)

type recordingCleaner struct {
	cutoff int64
	err    error
}

func (r *recordingCleaner) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	r.cutoff = cutoff
	return 3, r.err
}

func TestEmbeddingCacheCleanupCutoff(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cleaner := &recordingCleaner{}
	j := NewEmbeddingCacheCleanupJob(cleaner, 0)
	j.now = func() time.Time { return now }

	require.Equal(t, "embedding_cache_cleanup", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), cleaner.cutoff)

	cleaner.err = errors.New("db down")
	j.maxAgeDays = 7
	require.Error(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-7*24*time.Hour).Unix(), cleaner.cutoff)
}

type countingCleaner struct {
	calls int
}

func (c *countingCleaner) Cleanup(ctx context.Context) (int64, error) {
	c.calls++
	return 2, nil
}

func TestRateWindowCleanupJob(t *testing.T) {
	cleaner := &countingCleaner{}
	require.NoError(t, NewRateWindowCleanupJob(cleaner).Run(context.Background()))
	require.Equal(t, 1, cleaner.calls)
	require.NoError(t, NewRateWindowCleanupJob(nil).Run(context.Background()))
}

type stubReembed struct {
	err error
}

func (s stubReembed) Run(ctx context.Context) (*service.ReembedResult, error) {
	return &service.ReembedResult{}, s.err
}

func TestReembedJobPropagatesError(t *testing.T) {
	require.NoError(t, NewReembedJob(stubReembed{}).Run(context.Background()))
	require.Error(t, NewReembedJob(stubReembed{err: errors.New("boom")}).Run(context.Background()))
	require.NoError(t, NewReembedJob(nil).Run(context.Background()))
}
