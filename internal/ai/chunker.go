package ai

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 100

	// overlapCharsPerWord converts the overlap budget (characters) into a count of
	// trailing words carried into the next fragment.
	overlapCharsPerWord = 5
)

// Chunker packs sentences into fragments of at most size characters. A sentence that
// is longer than size on its own is kept whole as an oversized fragment.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

func (c *Chunker) OverlapWords() int {
	return c.overlap / overlapCharsPerWord
}

func (c *Chunker) Chunk(text string) []string {
	sentences := SplitSentences(text)
	var (
		chunks []string
		buf    string
	)
	for _, sentence := range sentences {
		if buf == "" {
			buf = sentence
			continue
		}
		if utf8.RuneCountInString(buf)+1+utf8.RuneCountInString(sentence) > c.size {
			chunks = append(chunks, strings.TrimSpace(buf))
			tail := trailingWords(buf, c.OverlapWords())
			if tail == "" {
				buf = sentence
			} else {
				buf = tail + " " + sentence
			}
			continue
		}
		buf += " " + sentence
	}
	if last := strings.TrimSpace(buf); last != "" {
		chunks = append(chunks, last)
	}
	return chunks
}

func trailingWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// SplitSentences cuts text after each run of terminal punctuation, Latin or CJK.
// Whitespace around sentences is dropped and empty sentences are skipped.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
		}
		if s := strings.TrimFunc(string(runes[start:i+1]), unicode.IsSpace); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if start < len(runes) {
		if s := strings.TrimFunc(string(runes[start:]), unicode.IsSpace); s != "" {
			out = append(out, s)
		}
	}
	return out
}
