package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/model"
)

var (
	ErrQueueFull   = errors.New("ingest queue is full")
	ErrQueueClosed = errors.New("ingest queue is closed")
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
	DefaultTimeout   = 5 * time.Minute
)

type DocumentProcessor interface {
	Process(ctx context.Context, doc *model.Document) (int, error)
}

type QueueConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds one document, including all of its embedding calls.
	Timeout time.Duration
}

type Stats struct {
	Workers   int    `json:"workers"`
	Capacity  int    `json:"capacity"`
	Queued    int    `json:"queued"`
	Running   int64  `json:"running"`
	Submitted uint64 `json:"submitted"`
	Rejected  uint64 `json:"rejected"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Fragments uint64 `json:"fragments"`
}

// Queue is a bounded ingestion queue drained by a fixed worker pool. Submit never blocks.
// Failures are logged and counted; nothing is retried.
type Queue struct {
	proc  DocumentProcessor
	cfg   QueueConfig
	tasks chan *model.Document

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	running   atomic.Int64
	submitted atomic.Uint64
	rejected  atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	fragments atomic.Uint64
}

func NewQueue(proc DocumentProcessor, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Queue{
		proc:  proc,
		cfg:   cfg,
		tasks: make(chan *model.Document, cfg.QueueSize),
	}
}

// Start launches the workers. ctx carries the logger; cancelling it aborts in-flight work.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	logutil.GetLogger(ctx).Info("ingest workers started", zap.Int("workers", q.cfg.Workers), zap.Int("queue_size", q.cfg.QueueSize))
}

func (q *Queue) Submit(doc *model.Document) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- doc:
		q.submitted.Add(1)
		return nil
	default:
		q.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stop refuses new work, lets the workers drain what is queued and waits for them
// until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		Workers:   q.cfg.Workers,
		Capacity:  q.cfg.QueueSize,
		Queued:    len(q.tasks),
		Running:   q.running.Load(),
		Submitted: q.submitted.Load(),
		Rejected:  q.rejected.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Fragments: q.fragments.Load(),
	}
}

func (q *Queue) worker(ctx context.Context, idx int) {
	defer q.wg.Done()
	for doc := range q.tasks {
		q.run(ctx, idx, doc)
	}
}

func (q *Queue) run(ctx context.Context, idx int, doc *model.Document) {
	q.running.Add(1)
	defer q.running.Add(-1)

	logger := logutil.GetLogger(ctx).With(zap.Int("worker", idx), zap.String("document_id", doc.ID))
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			logger.Error("ingest panic", zap.Any("panic", r))
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	defer cancel()
	start := time.Now()
	n, err := q.proc.Process(taskCtx, doc)
	if err != nil {
		q.failed.Add(1)
		logger.Error("ingest document failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	q.succeeded.Add(1)
	q.fragments.Add(uint64(n))
	logger.Debug("ingest document finished", zap.Int("fragments", n), zap.Duration("duration", time.Since(start)))
}
