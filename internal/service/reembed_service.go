package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/model"
)

type FragmentMigrator interface {
	ListOutsideSpace(ctx context.Context, space string, limit uint) ([]*model.Fragment, error)
	UpdateEmbedding(ctx context.Context, id string, vec []float32, space string) error
}

type PrimaryEmbedder interface {
	PrimarySpace() string
	EmbedPrimary(ctx context.Context, text string, taskType string) (*ai.Embedding, error)
}

type ReembedResult struct {
	Scanned int `json:"scanned"`
	Moved   int `json:"moved"`
}

// ReembedService moves fragments embedded by a fallback back into the primary space.
type ReembedService struct {
	frags    FragmentMigrator
	embedder PrimaryEmbedder
	batch    int
}

func NewReembedService(frags FragmentMigrator, embedder PrimaryEmbedder, batch int) *ReembedService {
	if batch <= 0 {
		batch = 100
	}
	return &ReembedService{frags: frags, embedder: embedder, batch: batch}
}

// Run migrates one batch. It stops at the first primary failure, leaving the rest for the
// next run.
func (s *ReembedService) Run(ctx context.Context) (*ReembedResult, error) {
	logger := logutil.GetLogger(ctx)
	res := &ReembedResult{}
	primary := s.embedder.PrimarySpace()
	if primary == ai.HashSpace {
		return res, nil
	}
	frags, err := s.frags.ListOutsideSpace(ctx, primary, uint(s.batch))
	if err != nil {
		return nil, err
	}
	res.Scanned = len(frags)
	for _, frag := range frags {
		emb, err := s.embedder.EmbedPrimary(ctx, frag.Content, ai.TaskRetrievalDocument)
		if err != nil {
			logger.Warn("primary embedder unavailable, re-embed postponed",
				zap.String("space", primary),
				zap.Int("moved", res.Moved),
				zap.Error(err),
			)
			return res, nil
		}
		if err := s.frags.UpdateEmbedding(ctx, frag.ID, emb.Vector, emb.Space); err != nil {
			return res, err
		}
		res.Moved++
	}
	if res.Moved > 0 {
		logger.Info("fragments re-embedded", zap.String("space", primary), zap.Int("moved", res.Moved))
	}
	return res, nil
}
