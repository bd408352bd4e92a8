package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	name  string
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) ModelName() string {
	return f.name
}

type slowEmbedder struct{}

func (s *slowEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowEmbedder) ModelName() string {
	return "slow:model"
}

type fakeGenerator struct {
	answer string
	err    error
}

func (f *fakeGenerator) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	return f.answer, f.err
}

func TestResolverUsesPrimary(t *testing.T) {
	primary := &fakeEmbedder{name: "gemini:text-embedding-004", vec: []float32{1, 0, 0}}
	r := NewResolver([]EmbedderEntry{{Name: "main", Embedder: primary}}, time.Second)

	emb := r.Embed(context.Background(), "hello", TaskRetrievalQuery)
	require.Equal(t, []float32{1, 0, 0}, emb.Vector)
	require.Equal(t, "gemini:text-embedding-004", emb.Space)
	require.False(t, emb.Degraded)
	require.Equal(t, "gemini:text-embedding-004", r.PrimarySpace())
}

func TestResolverFallsBackInOrder(t *testing.T) {
	first := &fakeEmbedder{name: "gemini:a", err: fmt.Errorf("%w: quota", ErrUnavailable)}
	second := &fakeEmbedder{name: "openai:b", vec: []float32{0, 1}}
	r := NewResolver([]EmbedderEntry{{Name: "first", Embedder: first}, {Name: "second", Embedder: second}}, time.Second)

	emb := r.Embed(context.Background(), "hello", TaskRetrievalDocument)
	require.Equal(t, "openai:b", emb.Space)
	require.True(t, emb.Degraded)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
}

func TestResolverFallsBackToHash(t *testing.T) {
	failing := &fakeEmbedder{name: "gemini:a", err: errors.New("no api key")}
	empty := &fakeEmbedder{name: "openai:b"}
	r := NewResolver([]EmbedderEntry{{Embedder: failing}, {Embedder: empty}}, time.Second)

	emb := r.Embed(context.Background(), "core breathing", TaskRetrievalQuery)
	require.Equal(t, HashSpace, emb.Space)
	require.True(t, emb.Degraded)
	require.Equal(t, HashVector("core breathing"), emb.Vector)
	require.Equal(t, 1, failing.calls, "a failing provider must not be retried")
}

func TestResolverTimeoutFallsBack(t *testing.T) {
	r := NewResolver([]EmbedderEntry{{Embedder: &slowEmbedder{}}}, 20*time.Millisecond)
	emb := r.Embed(context.Background(), "hello", TaskRetrievalQuery)
	require.Equal(t, HashSpace, emb.Space)
}

func TestResolverWithoutPrimaries(t *testing.T) {
	r := NewResolver(nil, time.Second)
	require.Equal(t, HashSpace, r.PrimarySpace())

	emb := r.Embed(context.Background(), "hello", TaskRetrievalQuery)
	require.Equal(t, HashSpace, emb.Space)
	require.False(t, emb.Degraded)

	emb, err := r.EmbedPrimary(context.Background(), "hello", TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, HashSpace, emb.Space)
}

func TestResolverEmbedPrimaryReturnsError(t *testing.T) {
	failing := &fakeEmbedder{name: "gemini:a", err: ErrUnavailable}
	backup := &fakeEmbedder{name: "openai:b", vec: []float32{1}}
	r := NewResolver([]EmbedderEntry{{Embedder: failing}, {Embedder: backup}}, time.Second)

	_, err := r.EmbedPrimary(context.Background(), "hello", TaskRetrievalDocument)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Zero(t, backup.calls)
}

func TestGroupGenerator(t *testing.T) {
	require.Nil(t, NewGroupGenerator(nil, time.Second))

	gen := NewGroupGenerator([]GeneratorEntry{
		{Name: "broken", Generator: &fakeGenerator{err: errors.New("boom")}},
		{Name: "empty", Generator: &fakeGenerator{}},
		{Name: "ok", Generator: &fakeGenerator{answer: "keep your back flat"}},
	}, time.Second)
	res, err := gen.Chat(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	require.Equal(t, "keep your back flat", res)

	gen = NewGroupGenerator([]GeneratorEntry{{Name: "empty", Generator: &fakeGenerator{}}}, time.Second)
	_, err = gen.Chat(context.Background(), &ChatRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
}
