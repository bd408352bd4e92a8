package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/config"
	"github.com/xxxsen/mtutor/internal/db"
	"github.com/xxxsen/mtutor/internal/embedcache"
	"github.com/xxxsen/mtutor/internal/filestore"
	"github.com/xxxsen/mtutor/internal/guard"
	"github.com/xxxsen/mtutor/internal/ingest"
	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/ratelimit"
	"github.com/xxxsen/mtutor/internal/repo"
	"github.com/xxxsen/mtutor/internal/search"
	"github.com/xxxsen/mtutor/internal/service"
)

// app holds the components shared by the server and the maintenance commands.
type app struct {
	cfg *config.Config
	db  *sql.DB

	store     filestore.Store
	docRepo   *repo.DocumentRepo
	fragRepo  *repo.FragmentRepo
	cacheRepo *repo.EmbeddingCacheRepo
	resolver  *ai.Resolver
	queue     *ingest.Queue

	documents *service.DocumentService
	reembed   *service.ReembedService
}

func openApp(cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}
	a := &app{
		cfg:       cfg,
		db:        conn,
		store:     store,
		docRepo:   repo.NewDocumentRepo(conn),
		fragRepo:  repo.NewFragmentRepo(conn),
		cacheRepo: repo.NewEmbeddingCacheRepo(conn),
	}
	a.resolver, err = a.buildResolver()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	chunker := ai.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.Overlap)
	processor := ingest.NewProcessor(chunker, ingest.NewExtractor(store), a.resolver, a.fragRepo)
	a.queue = ingest.NewQueue(processor, ingest.QueueConfig{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
		Timeout:   time.Duration(cfg.Ingest.TimeoutSeconds) * time.Second,
	})
	a.documents = service.NewDocumentService(a.docRepo, a.queue, a.fragRepo, a.resolver.PrimarySpace())
	a.reembed = service.NewReembedService(a.fragRepo, a.resolver, cfg.Jobs.ReembedBatch)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// buildResolver wires the configured embedders in order, each wrapped by the
// in-process and persistent caches. The hash embedder always answers last.
func (a *app) buildResolver() (*ai.Resolver, error) {
	logger := logutil.GetLogger(context.Background())
	entries := make([]ai.EmbedderEntry, 0, len(a.cfg.AI.Embed))
	for _, item := range a.cfg.AI.Embed {
		provider, err := ai.NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", item.Provider, err)
		}
		opts := embedcache.Options{
			LRUSize: a.cfg.EmbedCache.LRUSize,
			LRUTTL:  time.Duration(a.cfg.EmbedCache.LRUTTLSeconds) * time.Second,
		}
		if a.cfg.EmbedCache.DBEnabled {
			opts.Store = a.cacheRepo
		}
		embedder := embedcache.Wrap(ai.NewEmbedder(provider, item.Model), opts)
		name := item.Name
		if name == "" {
			name = embedder.ModelName()
		}
		entries = append(entries, ai.EmbedderEntry{Name: name, Embedder: embedder})
		logger.Info("embedder configured", zap.String("name", name), zap.String("space", embedder.ModelName()))
	}
	resolver := ai.NewResolver(entries, time.Duration(a.cfg.AI.Timeout)*time.Second)
	logger.Info("primary embedding space", zap.String("space", resolver.PrimarySpace()))
	return resolver, nil
}

func (a *app) buildGenerator() (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(a.cfg.AI.Chat))
	for _, item := range a.cfg.AI.Chat {
		provider, err := ai.NewChatProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init chat provider %s: %w", item.Provider, err)
		}
		name := item.Name
		if name == "" {
			name = item.Provider + ":" + item.Model
		}
		entries = append(entries, ai.GeneratorEntry{Name: name, Generator: ai.NewGenerator(provider, item.Model)})
	}
	if len(entries) == 0 {
		logutil.GetLogger(context.Background()).Warn("no chat provider configured, chat replies will fail")
	}
	return ai.NewGroupGenerator(entries, time.Duration(a.cfg.AI.Timeout)*time.Second), nil
}

func (a *app) buildValidator() (*guard.Validator, error) {
	var set *guard.PatternSet
	if a.cfg.InputGuard.PatternsFile != "" {
		loaded, err := guard.LoadPatternFile(a.cfg.InputGuard.PatternsFile)
		if err != nil {
			return nil, fmt.Errorf("load guard patterns: %w", err)
		}
		set = loaded
	}
	validator, err := guard.New(set, a.cfg.InputGuard.MaxChars)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(context.Background()).Info("input guard ready", zap.String("patterns_version", validator.Version()))
	return validator, nil
}

func (a *app) buildLimiter() *ratelimit.Limiter {
	var store ratelimit.WindowStore
	switch a.cfg.RateLimit.Store {
	case "memory":
		store = ratelimit.NewMemoryStore()
	default:
		store = repo.NewRateWindowRepo(a.db)
	}
	return ratelimit.New(store, ratelimit.Config{
		MaxRequests: a.cfg.RateLimit.MaxRequests,
		Window:      time.Duration(a.cfg.RateLimit.WindowSeconds) * time.Second,
	})
}

func (a *app) buildRetrieval() *service.RetrievalService {
	return service.NewRetrievalService(a.fragRepo, a.docRepo, a.resolver, search.NewBruteForce(), func(doc *model.Document) string {
		return a.store.URL(doc.FileKey)
	}, service.RetrievalConfig{MinSimilarity: *a.cfg.Retrieval.MinSimilarity})
}
