package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/mtutor/internal/filestore"
	"github.com/xxxsen/mtutor/internal/model"
)

var (
	// ErrUnsupported marks a document whose text cannot be extracted, such as a pdf
	// uploaded without a pre-extracted text file.
	ErrUnsupported = errors.New("unsupported document source")
	ErrEmptyText   = errors.New("document has no text")
)

const defaultMaxTextBytes = 8 << 20

// Extractor resolves the text a document is chunked from.
type Extractor struct {
	store    filestore.Store
	maxBytes int64
}

func NewExtractor(store filestore.Store) *Extractor {
	return &Extractor{store: store, maxBytes: defaultMaxTextBytes}
}

// Text returns the plain text of doc. Videos have no text; an image is described by its
// title and description; pdf and doc come from the text key first, then the file itself.
func (e *Extractor) Text(ctx context.Context, doc *model.Document) (string, error) {
	switch doc.Type {
	case model.DocumentTypeVideo:
		return "", nil
	case model.DocumentTypeImage:
		return strings.TrimSpace(doc.Title + "\n" + doc.Description), nil
	case model.DocumentTypePDF, model.DocumentTypeDoc:
	default:
		return "", fmt.Errorf("%w: document type %q", ErrUnsupported, doc.Type)
	}
	if doc.TextKey != "" {
		return e.readText(ctx, doc.TextKey, "")
	}
	if doc.Type == model.DocumentTypePDF {
		return "", fmt.Errorf("%w: pdf %s has no text_key", ErrUnsupported, doc.ID)
	}
	if doc.FileKey == "" {
		return "", fmt.Errorf("%w: doc %s has no file", ErrUnsupported, doc.ID)
	}
	return e.readText(ctx, doc.FileKey, doc.MimeType)
}

func (e *Extractor) readText(ctx context.Context, key string, mimeType string) (string, error) {
	if e.store == nil {
		return "", fmt.Errorf("%w: file store not configured", ErrUnsupported)
	}
	format := textFormat(key, mimeType)
	if format == "" {
		return "", fmt.Errorf("%w: %s is neither markdown nor plain text", ErrUnsupported, key)
	}
	rc, err := e.store.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrUnsupported, key, e.maxBytes)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %s is not valid utf-8", ErrUnsupported, key)
	}
	if format == "markdown" {
		return MarkdownToText(raw), nil
	}
	return string(raw), nil
}

func textFormat(key, mimeType string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".md", ".markdown":
		return "markdown"
	case ".txt", ".text":
		return "plain"
	}
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "text/markdown"):
		return "markdown"
	case strings.HasPrefix(mimeType, "text/plain"):
		return "plain"
	}
	return ""
}

// MarkdownToText keeps the readable text of a markdown document. Markup is dropped and
// every block ends on its own line.
func MarkdownToText(src []byte) string {
	reader := text.NewReader(src)
	doc := goldmark.New().Parser().Parse(reader)
	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
