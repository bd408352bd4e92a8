package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/search"
)

type FragmentReader interface {
	ListBySpace(ctx context.Context, space string) ([]*model.Fragment, error)
}

type DocumentReader interface {
	ListByIDs(ctx context.Context, ids []string) ([]*model.Document, error)
	ListByType(ctx context.Context, docType model.DocumentType) ([]*model.Document, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) *ai.Embedding
}

// Source is one ranked fragment together with the document it came from.
type Source struct {
	DocumentID string             `json:"document_id"`
	Title      string             `json:"title"`
	Type       model.DocumentType `json:"type"`
	Ordinal    int                `json:"ordinal"`
	Score      float64            `json:"score"`
	Content    string             `json:"content,omitempty"`
}

// RetrievedContext is what a chat turn hands to the generator.
type RetrievedContext struct {
	Text        string
	Sources     []Source
	HasMaterial bool
}

type RetrievalConfig struct {
	MinSimilarity float64
}

type RetrievalService struct {
	frags    FragmentReader
	docs     DocumentReader
	embedder QueryEmbedder
	strategy search.Strategy
	linkFor  func(doc *model.Document) string
	cfg      RetrievalConfig
}

func NewRetrievalService(frags FragmentReader, docs DocumentReader, embedder QueryEmbedder, strategy search.Strategy, linkFor func(doc *model.Document) string, cfg RetrievalConfig) *RetrievalService {
	if strategy == nil {
		strategy = search.NewBruteForce()
	}
	return &RetrievalService{frags: frags, docs: docs, embedder: embedder, strategy: strategy, linkFor: linkFor, cfg: cfg}
}

// Search ranks the fragments living in the query's embedding space. An unreadable corpus
// is treated as an empty one.
func (s *RetrievalService) Search(ctx context.Context, query string, topK int) []Source {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	emb := s.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	corpus, err := s.frags.ListBySpace(ctx, emb.Space)
	if err != nil {
		logger.Error("load fragments failed, searching empty corpus", zap.String("space", emb.Space), zap.Error(err))
		return nil
	}
	results := s.strategy.Search(emb.Vector, corpus, topK, s.cfg.MinSimilarity)
	if len(results) == 0 {
		return nil
	}
	ids := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if !seen[r.Fragment.DocumentID] {
			seen[r.Fragment.DocumentID] = true
			ids = append(ids, r.Fragment.DocumentID)
		}
	}
	docs, err := s.docs.ListByIDs(ctx, ids)
	if err != nil {
		logger.Error("load documents failed, searching empty corpus", zap.Error(err))
		return nil
	}
	byID := make(map[string]*model.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	out := make([]Source, 0, len(results))
	for _, r := range results {
		doc, ok := byID[r.Fragment.DocumentID]
		if !ok {
			continue
		}
		out = append(out, Source{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Type:       doc.Type,
			Ordinal:    r.Fragment.Ordinal,
			Score:      r.Score,
			Content:    r.Fragment.Content,
		})
	}
	logger.Debug("retrieval finished",
		zap.String("space", emb.Space),
		zap.Bool("degraded", emb.Degraded),
		zap.Int("corpus", len(corpus)),
		zap.Int("matched", len(out)),
	)
	return out
}

func (s *RetrievalService) Videos(ctx context.Context) []*model.Document {
	videos, err := s.docs.ListByType(ctx, model.DocumentTypeVideo)
	if err != nil {
		logutil.GetLogger(ctx).Error("list videos failed", zap.Error(err))
		return nil
	}
	return videos
}

// BuildContext lists the top fragments and every video. The text is empty when the query
// is blank, or when nothing matched and there are no videos.
func (s *RetrievalService) BuildContext(ctx context.Context, query string, topK int) *RetrievedContext {
	out := &RetrievedContext{}
	if strings.TrimSpace(query) == "" {
		return out
	}
	var sb strings.Builder
	out.Sources = s.Search(ctx, query, topK)
	if len(out.Sources) > 0 {
		out.HasMaterial = true
		sb.WriteString("\n\n[Reference material]\n")
		for i, src := range out.Sources {
			fmt.Fprintf(&sb, "\n%d. %s (%s):\n%s\n", i+1, src.Title, src.Type, src.Content)
		}
	}
	videos := s.Videos(ctx)
	if len(videos) > 0 {
		sb.WriteString("\n\n[Video tutorials]\n")
		for i, video := range videos {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, video.Title, s.videoLink(video))
			if video.Description != "" {
				fmt.Fprintf(&sb, "   Description: %s\n", video.Description)
			}
		}
	}
	out.Text = sb.String()
	return out
}

func (s *RetrievalService) videoLink(doc *model.Document) string {
	if doc.Link != "" {
		return doc.Link
	}
	if s.linkFor != nil && doc.FileKey != "" {
		return s.linkFor(doc)
	}
	return ""
}
