package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const (
	HashDimension = 256
	HashSpace     = "hash-256"
)

// HashEmbedder is the offline embedder used when no remote provider answers. Every
// lower-cased whitespace token adds 1 to the bucket picked by its FNV-1a hash; the
// counts are then L2 normalised. It is a pure function of the input text.
type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

func (h *HashEmbedder) Embed(_ context.Context, text string, _ string) ([]float32, error) {
	return HashVector(text), nil
}

func (h *HashEmbedder) ModelName() string {
	return HashSpace
}

func HashVector(text string) []float32 {
	acc := make([]float64, HashDimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(token))
		acc[hasher.Sum32()%HashDimension]++
	}
	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	out := make([]float32, HashDimension)
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}
