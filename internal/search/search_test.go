package search

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/mtutor/internal/model"
)

func TestCosineIdentities(t *testing.T) {
	v := []float32{0.3, -1.2, 4, 0.5}
	neg := make([]float32, len(v))
	for i := range v {
		neg[i] = -v[i]
	}
	require.InDelta(t, 1.0, Cosine(v, v), 1e-9)
	require.InDelta(t, -1.0, Cosine(v, neg), 1e-9)

	w := []float32{1, 2, -3, 0}
	require.Equal(t, Cosine(v, w), Cosine(w, v))
}

func TestCosineDegenerate(t *testing.T) {
	require.Zero(t, Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}))
	require.Zero(t, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	require.Zero(t, Cosine(nil, nil))
}

func frag(id string, vec ...float32) *model.Fragment {
	return &model.Fragment{ID: id, Embedding: vec}
}

func ids(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Fragment.ID)
	}
	return out
}

func TestSearchRanksAndFilters(t *testing.T) {
	corpus := []*model.Fragment{
		frag("orthogonal", 0, 1),
		frag("close", 0.9, 0.1),
		frag("exact", 1, 0),
		frag("opposite", -1, 0),
		frag("wrong-dim", 1, 0, 0),
	}
	res := Search([]float32{1, 0}, corpus, 10, DefaultMinSimilarity)
	require.Equal(t, []string{"exact", "close"}, ids(res))
	for i := 1; i < len(res); i++ {
		require.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
	for _, r := range res {
		require.Greater(t, r.Score, DefaultMinSimilarity)
	}
}

func TestSearchThresholdIsExclusive(t *testing.T) {
	// cos = 0.6 exactly for (3,4)·(1,0)/5
	corpus := []*model.Fragment{frag("a", 3, 4)}
	require.Empty(t, Search([]float32{1, 0}, corpus, 3, 0.6))
	require.Len(t, Search([]float32{1, 0}, corpus, 3, 0.59), 1)
}

func TestSearchTopKAndStableTies(t *testing.T) {
	corpus := []*model.Fragment{
		frag("first", 1, 0),
		frag("second", 2, 0),
		frag("third", 3, 0),
		frag("fourth", 0.5, 0.5),
	}
	res := Search([]float32{1, 0}, corpus, 2, DefaultMinSimilarity)
	require.Equal(t, []string{"first", "second"}, ids(res))

	all := Search([]float32{1, 0}, corpus, 0, DefaultMinSimilarity)
	require.Equal(t, []string{"first", "second", "third", "fourth"}, ids(all))
}

func TestSearchEmpty(t *testing.T) {
	require.Empty(t, Search([]float32{1, 0}, nil, DefaultChatTopK, DefaultMinSimilarity))
	require.Empty(t, Search([]float32{0, 0}, []*model.Fragment{frag("a", 1, 0)}, DefaultChatTopK, DefaultMinSimilarity))
}

func TestBruteForceStrategy(t *testing.T) {
	var s Strategy = NewBruteForce()
	res := s.Search([]float32{1, 0}, []*model.Fragment{frag("a", 1, 0)}, DefaultListTopK, DefaultMinSimilarity)
	require.Len(t, res, 1)
	require.InDelta(t, 1.0, res[0].Score, 1e-9)
}
