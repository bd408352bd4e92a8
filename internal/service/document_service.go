package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ingest"
	"github.com/xxxsen/mtutor/internal/model"
	appErr "github.com/xxxsen/mtutor/internal/pkg/errors"
	"github.com/xxxsen/mtutor/internal/pkg/timeutil"
	"github.com/xxxsen/mtutor/internal/repo"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, offset, limit uint) ([]*model.Document, error)
	ListByType(ctx context.Context, docType model.DocumentType) ([]*model.Document, error)
}

type IngestQueue interface {
	Submit(doc *model.Document) error
	Stats() ingest.Stats
}

type SpaceCounter interface {
	CountBySpace(ctx context.Context) ([]repo.SpaceCount, error)
}

type RegisterResult struct {
	Document *model.Document `json:"document"`
	Queued   bool            `json:"queued"`
}

type IngestStats struct {
	Queue        ingest.Stats      `json:"queue"`
	PrimarySpace string            `json:"primary_space"`
	Spaces       []repo.SpaceCount `json:"spaces"`
}

type DocumentService struct {
	docs         DocumentStore
	queue        IngestQueue
	counter      SpaceCounter
	primarySpace string
}

func NewDocumentService(docs DocumentStore, queue IngestQueue, counter SpaceCounter, primarySpace string) *DocumentService {
	return &DocumentService{docs: docs, queue: queue, counter: counter, primarySpace: primarySpace}
}

// Register stores the document and queues it for ingestion. The record is kept even when
// the queue is full; Queued reports whether ingestion was scheduled.
func (s *DocumentService) Register(ctx context.Context, doc *model.Document) (*RegisterResult, error) {
	doc.Title = strings.TrimSpace(doc.Title)
	if doc.Title == "" {
		return nil, fmt.Errorf("%w: title is required", appErr.ErrInvalid)
	}
	if !doc.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", appErr.ErrInvalid, doc.Type)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := timeutil.NowUnix()
	doc.Ctime = now
	doc.Mtime = now
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	res := &RegisterResult{Document: doc}
	if doc.Type == model.DocumentTypeVideo {
		return res, nil
	}
	res.Queued = s.enqueue(ctx, doc)
	return res, nil
}

// Reingest queues an existing document again; its fragment set is replaced when done.
func (s *DocumentService) Reingest(ctx context.Context, id string) (bool, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if doc.Type == model.DocumentTypeVideo {
		return false, nil
	}
	return s.enqueue(ctx, doc), nil
}

func (s *DocumentService) enqueue(ctx context.Context, doc *model.Document) bool {
	err := s.queue.Submit(doc)
	if err == nil {
		return true
	}
	level := logutil.GetLogger(ctx).Error
	if errors.Is(err, ingest.ErrQueueFull) {
		level = logutil.GetLogger(ctx).Warn
	}
	level("document not queued for ingestion", zap.String("document_id", doc.ID), zap.Error(err))
	return false
}

func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// Delete removes the document and, by cascade, its fragments.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	return s.docs.Delete(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, offset, limit uint) ([]*model.Document, error) {
	return s.docs.List(ctx, offset, limit)
}

func (s *DocumentService) Videos(ctx context.Context) ([]*model.Document, error) {
	return s.docs.ListByType(ctx, model.DocumentTypeVideo)
}

func (s *DocumentService) Stats(ctx context.Context) (*IngestStats, error) {
	out := &IngestStats{Queue: s.queue.Stats(), PrimarySpace: s.primarySpace}
	if s.counter == nil {
		return out, nil
	}
	spaces, err := s.counter.CountBySpace(ctx)
	if err != nil {
		return nil, err
	}
	out.Spaces = spaces
	return out, nil
}
