package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/config"
	"github.com/xxxsen/mtutor/internal/filestore"
	"github.com/xxxsen/mtutor/internal/handler"
	"github.com/xxxsen/mtutor/internal/job"
	"github.com/xxxsen/mtutor/internal/middleware"
	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/pkg/jwt"
	"github.com/xxxsen/mtutor/internal/schedule"
	"github.com/xxxsen/mtutor/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mtutor",
		Short: "pilates teaching assistant backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run mtutor server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	var (
		ingestTitle       string
		ingestType        string
		ingestDescription string
		ingestTextFile    string
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "register a local file as teaching material and ingest it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runIngest(cmd.Context(), a, args[0], ingestTextFile, &model.Document{
				Title:       ingestTitle,
				Type:        model.DocumentType(ingestType),
				Description: ingestDescription,
			})
		},
	}
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title, defaults to the file name")
	ingestCmd.Flags().StringVar(&ingestType, "type", string(model.DocumentTypeDoc), "document type: video, image, pdf or doc")
	ingestCmd.Flags().StringVar(&ingestDescription, "description", "", "document description")
	ingestCmd.Flags().StringVar(&ingestTextFile, "text", "", "pre-extracted text file, required for pdf")

	reembedCmd := &cobra.Command{
		Use:   "reembed",
		Short: "move one batch of fallback fragments into the primary embedding space",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return schedule.RunOnce(cmd.Context(), job.NewReembedJob(a.reembed))
		},
	}

	var (
		tokenUser string
		tokenRole string
		tokenTTL  time.Duration
	)
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token signed with jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured")
			}
			token, err := jwt.GenerateToken(tokenUser, tokenRole, []byte(cfg.JWTSecret), tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenUser, "user", "admin", "user id carried by the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", middleware.RoleAdmin, "role carried by the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(runCmd, ingestCmd, reembedCmd, tokenCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(configPath)
}

func setup(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return openApp(cfg)
}

func runServer(a *app) error {
	cfg := a.cfg
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("rate_limit_store", cfg.RateLimit.Store),
	)

	validator, err := a.buildValidator()
	if err != nil {
		return err
	}
	generator, err := a.buildGenerator()
	if err != nil {
		return err
	}
	manager := ai.NewManager(generator, ai.ManagerConfig{Timeout: cfg.AI.Timeout})
	retrieval := a.buildRetrieval()
	chat := service.NewChatService(validator, retrieval, manager, cfg.Retrieval.ChatTopK)
	limiter := a.buildLimiter()

	a.queue.Start(context.Background())

	scheduler := schedule.NewCronScheduler()
	jobs := []struct {
		job  schedule.Job
		spec string
	}{
		{job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.EmbedCache.MaxAgeDays), cfg.Jobs.EmbeddingCacheCleanup},
		{job.NewRateWindowCleanupJob(limiter), cfg.Jobs.RateWindowCleanup},
		{job.NewReembedJob(a.reembed), cfg.Jobs.Reembed},
	}
	for _, item := range jobs {
		if err := scheduler.AddJob(item.job, item.spec); err != nil {
			return fmt.Errorf("schedule %s: %w", item.job.Name(), err)
		}
	}
	scheduler.Start(context.Background())

	deps := handler.RouterDeps{
		Chat:      handler.NewChatHandler(chat, retrieval, a.documents, cfg.Retrieval.ListTopK),
		Documents: handler.NewDocumentHandler(a.documents, a.store),
		Limiter:   limiter,
		JWTSecret: []byte(cfg.JWTSecret),
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log := logutil.GetLogger(context.Background())
	log.Info("server stopping...")
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.queue.Stop(shutdownCtx); err != nil {
		log.Warn("ingest queue did not drain", zap.Error(err), zap.Any("stats", a.queue.Stats()))
	}
	return nil
}

// runIngest stores path in the file store, registers it and waits until the queue has
// processed it.
func runIngest(ctx context.Context, a *app, path, textPath string, doc *model.Document) error {
	if doc.Title == "" {
		doc.Title = filepath.Base(path)
	}
	key, size, err := storeLocalFile(ctx, a.store, "documents", path)
	if err != nil {
		return err
	}
	doc.FileKey = key
	doc.FileName = filepath.Base(path)
	doc.FileSize = size
	if textPath != "" {
		textKey, _, err := storeLocalFile(ctx, a.store, "texts", textPath)
		if err != nil {
			return err
		}
		doc.TextKey = textKey
	}

	a.queue.Start(ctx)
	res, err := a.documents.Register(ctx, doc)
	if err != nil {
		_ = a.queue.Stop(ctx)
		return err
	}
	if err := a.queue.Stop(ctx); err != nil {
		return err
	}
	stats := a.queue.Stats()
	logutil.GetLogger(ctx).Info("ingest finished",
		zap.String("document_id", res.Document.ID),
		zap.Bool("queued", res.Queued),
		zap.Uint64("succeeded", stats.Succeeded),
		zap.Uint64("fragments", stats.Fragments),
	)
	if stats.Failed > 0 {
		return fmt.Errorf("ingestion of %s failed, see log", res.Document.ID)
	}
	return nil
}

func storeLocalFile(ctx context.Context, store filestore.Store, prefix, path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", 0, err
	}
	key := filestore.BuildKey(prefix, path)
	if err := store.Save(ctx, key, file, info.Size()); err != nil {
		return "", 0, fmt.Errorf("store %s: %w", path, err)
	}
	return key, info.Size(), nil
}
