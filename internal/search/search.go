package search

import (
	"sort"

	"github.com/xxxsen/mtutor/internal/model"
)

const (
	DefaultChatTopK      = 3
	DefaultListTopK      = 20
	DefaultMinSimilarity = 0.3
)

type Result struct {
	Fragment *model.Fragment
	Score    float64
}

// Strategy ranks a corpus against a query vector. All fragments handed to a strategy
// are expected to share the query's embedding space.
type Strategy interface {
	Search(query []float32, corpus []*model.Fragment, topK int, minSimilarity float64) []Result
}

// BruteForce scores every fragment. It is fine for a corpus of a few thousand fragments.
type BruteForce struct{}

func NewBruteForce() *BruteForce {
	return &BruteForce{}
}

func (b *BruteForce) Search(query []float32, corpus []*model.Fragment, topK int, minSimilarity float64) []Result {
	return Search(query, corpus, topK, minSimilarity)
}

// Search keeps fragments scoring strictly above minSimilarity, best first. Equal scores
// keep their corpus order. topK <= 0 keeps every match.
func Search(query []float32, corpus []*model.Fragment, topK int, minSimilarity float64) []Result {
	results := make([]Result, 0, len(corpus))
	for _, frag := range corpus {
		if frag == nil {
			continue
		}
		score := Cosine(query, frag.Embedding)
		if score <= minSimilarity {
			continue
		}
		results = append(results, Result{Fragment: frag, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}
