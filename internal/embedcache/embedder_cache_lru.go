package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
)

// Options selects the caches put in front of a primary embedder.
type Options struct {
	LRUSize int
	LRUTTL  time.Duration
	// Store enables the persistent cache when set.
	Store Store
}

// Wrap stacks the in-process cache over the persistent one, so a process restart only
// costs database reads. The hash fallback is never wrapped.
func Wrap(e ai.IEmbedder, opts Options) ai.IEmbedder {
	if opts.Store != nil {
		e = WrapDBCacheToEmbedder(e, opts.Store)
	}
	return WrapLruCacheToEmbedder(e, opts.LRUSize, opts.LRUTTL)
}

type lruKey struct {
	space    string
	taskType string
	hash     string
}

// WrapLruCacheToEmbedder keeps recent vectors in process. Only successful, non-empty
// results are cached, so a provider outage is never remembered.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[lruKey, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[lruKey, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	_, contentHash, space := buildCacheKey(l.next.ModelName(), taskType, text)
	key := lruKey{space: space, taskType: taskType, hash: contentHash}
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("space", space), zap.String("task_type", taskType))
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) > 0 {
		l.cache.Add(key, cloneEmbedding(res))
	}
	return res, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	return append([]float32(nil), values...)
}
