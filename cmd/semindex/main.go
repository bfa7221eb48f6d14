package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/ai"
	"github.com/xxxsen/semindex/internal/config"
	"github.com/xxxsen/semindex/internal/db"
	"github.com/xxxsen/semindex/internal/event"
	"github.com/xxxsen/semindex/internal/filestore"
	"github.com/xxxsen/semindex/internal/handler"
	"github.com/xxxsen/semindex/internal/job"
	"github.com/xxxsen/semindex/internal/middleware"
	"github.com/xxxsen/semindex/internal/remote"
	"github.com/xxxsen/semindex/internal/repo"
	"github.com/xxxsen/semindex/internal/schedule"
	"github.com/xxxsen/semindex/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "semindex",
		Short: "semantic indexing and similarity search server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run semindex server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "index every eligible item missing an embedding and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runBackfill(cfg, conn)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "drop all local embeddings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			ctx := context.Background()
			if err := repo.NewEmbeddingRepo(conn, cfg.Database.Driver).DeleteAll(ctx); err != nil {
				return fmt.Errorf("clear embeddings: %w", err)
			}
			logutil.GetLogger(ctx).Info("local embeddings cleared")
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, backfillCmd, clearCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
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

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn, cfg.Database.Driver); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func buildSemanticService(cfg *config.Config, conn *sql.DB) (*service.SemanticService, error) {
	driver := cfg.Database.Driver
	encoder, err := ai.NewEncoder(cfg.Encoder.Provider, ai.EncoderOptions{
		Model:     cfg.Encoder.Model,
		Dimension: cfg.Encoder.Dimension,
	}, cfg.Encoder.Data)
	if err != nil {
		return nil, fmt.Errorf("init encoder: %w", err)
	}
	encoder = ai.WithTimeout(encoder, time.Duration(cfg.Encoder.Timeout)*time.Second)

	inputs, err := filestore.New(cfg.InputStore)
	if err != nil {
		return nil, fmt.Errorf("init input store: %w", err)
	}
	rmt, err := remote.New(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("init remote store: %w", err)
	}
	embeddings := repo.NewEmbeddingRepo(conn, driver)
	store := service.NewEmbeddingStore(embeddings, rmt, cfg.Encoder.Dimension)

	return service.NewSemanticService(service.Deps{
		Bus:            event.NewBus(),
		Encoder:        encoder,
		Store:          store,
		Files:          repo.NewFileRepo(conn, driver),
		Collections:    repo.NewCollectionRepo(conn, driver),
		Inputs:         inputs,
		Settings:       cfg.Settings,
		Dimension:      cfg.Encoder.Dimension,
		Version:        cfg.Encoder.Version,
		MinSimilarity:  *cfg.Index.MinSimilarity,
		ReloadDebounce: time.Duration(cfg.Index.ReloadDebounceMs) * time.Millisecond,
		QueryCacheSize: cfg.Index.QueryCacheSize,
	}), nil
}

func runBackfill(cfg *config.Config, conn *sql.DB) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	semantic, err := buildSemanticService(cfg, conn)
	if err != nil {
		return err
	}
	if err := semantic.Start(ctx); err != nil {
		return fmt.Errorf("start semantic service: %w", err)
	}
	defer semantic.Stop()

	if err := semantic.SyncEmbeddings(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("sync before backfill failed", zap.Error(err))
	}
	added, err := semantic.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	if err := semantic.Drain(ctx); err != nil {
		return err
	}
	status := semantic.Status()
	logutil.GetLogger(ctx).Info("backfill finished",
		zap.Int("count", added),
		zap.Uint64("indexed", status.Indexed),
		zap.Uint64("empty", status.Empty),
		zap.Uint64("dropped", status.Dropped),
	)
	return nil
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("encoder", cfg.Encoder.Provider),
		zap.String("remote", cfg.Remote.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	semantic, err := buildSemanticService(cfg, conn)
	if err != nil {
		return err
	}
	if err := semantic.Start(ctx); err != nil {
		return fmt.Errorf("start semantic service: %w", err)
	}
	defer semantic.Stop()

	scheduler := schedule.NewCronScheduler()
	jobs := []struct {
		job  schedule.Job
		spec string
	}{
		{job.NewBackfillJob(semantic), cfg.Index.BackfillSpec},
		{job.NewRemoteSyncJob(semantic), cfg.Index.SyncSpec},
		{job.NewStaleEmbeddingCleanupJob(semantic), cfg.Index.StaleFlushSpec},
	}
	for _, item := range jobs {
		if err := scheduler.AddJob(item.job, item.spec); err != nil {
			return fmt.Errorf("schedule job: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	if cfg.Remote.Type != "" {
		_ = scheduler.Trigger("remote_sync")
	}

	deps := handler.RouterDeps{
		Search:          handler.NewSearchHandler(semantic),
		Index:           handler.NewIndexHandler(semantic),
		Events:          handler.NewEventHandler(semantic),
		Settings:        handler.NewSettingsHandler(semantic),
		SearchRateLimit: time.Duration(cfg.RateLimitMs) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.AllowOrigin),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
