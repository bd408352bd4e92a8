package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/pkg/timeutil"
)

type TextSource interface {
	Text(ctx context.Context, doc *model.Document) (string, error)
}

// Embedder never fails; ai.Resolver falls back to the local hash space.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) *ai.Embedding
}

type FragmentWriter interface {
	ReplaceByDocument(ctx context.Context, documentID string, frags []*model.Fragment) error
}

type Processor struct {
	chunker  *ai.Chunker
	source   TextSource
	embedder Embedder
	writer   FragmentWriter
	newID    func() string
}

func NewProcessor(chunker *ai.Chunker, source TextSource, embedder Embedder, writer FragmentWriter) *Processor {
	return &Processor{
		chunker:  chunker,
		source:   source,
		embedder: embedder,
		writer:   writer,
		newID:    uuid.NewString,
	}
}

// Process turns a document into its fragment set and stores it. It returns the number of
// fragments written. Videos produce no fragments.
func (p *Processor) Process(ctx context.Context, doc *model.Document) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", doc.ID), zap.String("type", string(doc.Type)))
	if doc.Type == model.DocumentTypeVideo {
		logger.Debug("video document has no fragments")
		return 0, nil
	}
	content, err := p.source.Text(ctx, doc)
	if err != nil {
		return 0, err
	}
	chunks := p.split(doc, content)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyText, doc.ID)
	}
	now := timeutil.NowUnix()
	frags := make([]*model.Fragment, 0, len(chunks))
	degraded := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		emb := p.embedder.Embed(ctx, chunk, ai.TaskRetrievalDocument)
		if emb.Degraded {
			degraded++
		}
		frags = append(frags, &model.Fragment{
			ID:         p.newID(),
			DocumentID: doc.ID,
			Ordinal:    i,
			Content:    chunk,
			Embedding:  emb.Vector,
			Space:      emb.Space,
			Dimension:  len(emb.Vector),
			Metadata: model.FragmentMetadata{
				SourceType:    string(doc.Type),
				ContentLength: utf8.RuneCountInString(chunk),
			},
			Ctime: now,
		})
	}
	if err := p.writer.ReplaceByDocument(ctx, doc.ID, frags); err != nil {
		return 0, fmt.Errorf("store fragments: %w", err)
	}
	logger.Info("document ingested", zap.Int("fragments", len(frags)), zap.Int("degraded", degraded))
	return len(frags), nil
}

// split chunks content; an image is always described by a single fragment.
func (p *Processor) split(doc *model.Document, content string) []string {
	if doc.Type == model.DocumentTypeImage {
		if text := strings.TrimSpace(content); text != "" {
			return []string{text}
		}
		return nil
	}
	return p.chunker.Chunk(content)
}
