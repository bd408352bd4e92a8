package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupGenerator struct {
	items   []GeneratorEntry
	timeout time.Duration
}

// NewGroupGenerator tries each generator in order and returns the first answer.
func NewGroupGenerator(items []GeneratorEntry, timeout time.Duration) IGenerator {
	if len(items) == 0 {
		return nil
	}
	return &groupGenerator{items: items, timeout: timeout}
}

func (g *groupGenerator) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := g.chat(ctx, item.Generator, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("%w: generator not configured", ErrUnavailable)
	}
	return "", lastErr
}

func (g *groupGenerator) chat(ctx context.Context, gen IGenerator, req *ChatRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	res, err := gen.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	if res == "" {
		return "", fmt.Errorf("%w: empty ai response", ErrUnavailable)
	}
	return res, nil
}

// Embedding is a vector tagged with the space that produced it.
type Embedding struct {
	Vector []float32
	Space  string
	// Degraded is set when the vector did not come from the first configured embedder.
	Degraded bool
}

// Resolver turns the configured embedders into one that never fails: the remote
// embedders are tried in order, each bounded by timeout and never retried, and the
// local hash embedder answers when all of them are unavailable.
type Resolver struct {
	primaries []EmbedderEntry
	fallback  *HashEmbedder
	timeout   time.Duration
}

func NewResolver(primaries []EmbedderEntry, timeout time.Duration) *Resolver {
	items := make([]EmbedderEntry, 0, len(primaries))
	for _, item := range primaries {
		if item.Embedder != nil {
			items = append(items, item)
		}
	}
	return &Resolver{primaries: items, fallback: NewHashEmbedder(), timeout: timeout}
}

// PrimarySpace is the space the corpus is expected to live in.
func (r *Resolver) PrimarySpace() string {
	if len(r.primaries) == 0 {
		return r.fallback.ModelName()
	}
	return r.primaries[0].Embedder.ModelName()
}

func (r *Resolver) Embed(ctx context.Context, text string, taskType string) *Embedding {
	logger := logutil.GetLogger(ctx)
	for i, item := range r.primaries {
		vec, err := r.embedOne(ctx, item.Embedder, text, taskType)
		if err == nil {
			return &Embedding{Vector: vec, Space: item.Embedder.ModelName(), Degraded: i > 0}
		}
		logger.Warn("embedder unavailable, trying next",
			zap.Int("index", i),
			zap.String("name", item.Name),
			zap.String("space", item.Embedder.ModelName()),
			zap.Error(err),
		)
	}
	vec, _ := r.fallback.Embed(ctx, text, taskType)
	if len(r.primaries) > 0 {
		logger.Warn("using local fallback embedding", zap.String("space", r.fallback.ModelName()))
	}
	return &Embedding{Vector: vec, Space: r.fallback.ModelName(), Degraded: len(r.primaries) > 0}
}

// EmbedPrimary only asks the first configured embedder; it is used to move
// fragments back into the primary space.
func (r *Resolver) EmbedPrimary(ctx context.Context, text string, taskType string) (*Embedding, error) {
	if len(r.primaries) == 0 {
		vec, _ := r.fallback.Embed(ctx, text, taskType)
		return &Embedding{Vector: vec, Space: r.fallback.ModelName()}, nil
	}
	item := r.primaries[0]
	vec, err := r.embedOne(ctx, item.Embedder, text, taskType)
	if err != nil {
		return nil, err
	}
	return &Embedding{Vector: vec, Space: item.Embedder.ModelName()}, nil
}

func (r *Resolver) embedOne(ctx context.Context, e IEmbedder, text string, taskType string) ([]float32, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	vec, err := e.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrUnavailable)
	}
	return vec, nil
}
