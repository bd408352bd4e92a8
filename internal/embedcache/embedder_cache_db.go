package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/model"
)

// Store persists primary embeddings between restarts.
type Store interface {
	Get(ctx context.Context, space, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// WrapDBCacheToEmbedder puts a persistent cache in front of e. Cache read and write
// failures are logged and the call goes through to e.
func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store, now: time.Now}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
	now   func() time.Time
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	logger := logutil.GetLogger(ctx)
	_, contentHash, space := buildCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.store.Get(ctx, space, taskType, contentHash)
	if err != nil {
		logger.Warn("read embedding cache failed", zap.String("space", space), zap.Error(err))
	}
	if ok && len(values) > 0 {
		logger.Debug("embedding cache hit (db)", zap.String("space", space), zap.String("task_type", taskType))
		return values, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, &model.EmbeddingCache{
		Space:       space,
		TaskType:    taskType,
		ContentHash: contentHash,
		Embedding:   res,
		Ctime:       d.now().Unix(),
	}); err != nil {
		logger.Warn("write embedding cache failed", zap.String("space", space), zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

func buildCacheKey(space, taskType, text string) (string, string, string) {
	space = strings.TrimSpace(space)
	if space == "" {
		space = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + space + ":" + taskType + ":" + contentHash, contentHash, space
}
