package ai

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "latin", text: "One. Two! Three?", want: []string{"One.", "Two!", "Three?"}},
		{name: "cjk", text: "核心收紧。注意呼吸！可以吗？", want: []string{"核心收紧。", "注意呼吸！", "可以吗？"}},
		{name: "trailing text", text: "Done. and more", want: []string{"Done.", "and more"}},
		{name: "punctuation run", text: "Really?! Yes.", want: []string{"Really?!", "Yes."}},
		{name: "whitespace only", text: " \n\t ", want: nil},
		{name: "empty", text: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestChunkShortTextIsSingleFragment(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultOverlap)
	require.Equal(t, []string{"A. B. C."}, c.Chunk("  A. B. C.  "))
}

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultOverlap)
	require.Empty(t, c.Chunk(""))
	require.Empty(t, c.Chunk("   \n  "))
}

func TestChunkOversizedSentenceIsKeptWhole(t *testing.T) {
	long := strings.Repeat("x", 40) + "."
	c := NewChunker(10, 0)
	chunks := c.Chunk("Hi. " + long + " Bye.")
	require.Equal(t, []string{"Hi.", long, "Bye."}, chunks)
}

func buildSentences(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("Sentence number %d talks about breathing and core work.", i))
	}
	return out
}

func TestChunkOverlapCanBeRemovedToRebuildText(t *testing.T) {
	sentences := buildSentences(40)
	text := strings.Join(sentences, " ")
	c := NewChunker(200, 25)
	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)

	rebuilt := chunks[0]
	for i := 1; i < len(chunks); i++ {
		prefix := trailingWords(chunks[i-1], c.OverlapWords()) + " "
		require.True(t, strings.HasPrefix(chunks[i], prefix), "chunk %d should start with the overlap of chunk %d", i, i-1)
		rebuilt += " " + strings.TrimPrefix(chunks[i], prefix)
	}
	require.Equal(t, text, rebuilt)
}

func TestChunkRespectsSizeUnlessSingleSentence(t *testing.T) {
	c := NewChunker(200, 0)
	for _, chunk := range c.Chunk(strings.Join(buildSentences(30), " ")) {
		require.LessOrEqual(t, utf8.RuneCountInString(chunk), 200)
	}
}

func TestChunkIsIdempotent(t *testing.T) {
	text := strings.Join(buildSentences(25), " ")
	c := NewChunker(150, 50)
	require.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(0, -1)
	require.Equal(t, DefaultChunkSize, c.size)
	require.Equal(t, 0, c.OverlapWords())
	require.Equal(t, 20, NewChunker(500, 100).OverlapWords())
}
