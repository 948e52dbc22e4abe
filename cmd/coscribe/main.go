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

	"github.com/xxxsen/coscribe/internal/ai"
	"github.com/xxxsen/coscribe/internal/config"
	"github.com/xxxsen/coscribe/internal/db"
	"github.com/xxxsen/coscribe/internal/dockind"
	"github.com/xxxsen/coscribe/internal/filestore"
	"github.com/xxxsen/coscribe/internal/handler"
	"github.com/xxxsen/coscribe/internal/job"
	"github.com/xxxsen/coscribe/internal/middleware"
	"github.com/xxxsen/coscribe/internal/model"
	"github.com/xxxsen/coscribe/internal/repo"
	"github.com/xxxsen/coscribe/internal/schedule"
	"github.com/xxxsen/coscribe/internal/service"
	"github.com/xxxsen/coscribe/internal/stream"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "coscribe",
		Short: "coscribe backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run coscribe server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
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
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.Bool("resumable_streams", cfg.Stream.Resumable),
		zap.String("file_store", cfg.FileStore.Type),
	)

	userRepo := repo.NewUserRepo(conn)
	docRepo := repo.NewDocumentRepo(conn)
	streamRepo := repo.NewStreamRepo(conn)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	registry, err := dockind.NewRegistry(
		dockind.NewTextHandler(),
		dockind.NewCodeHandler(),
		dockind.NewSheetHandler(),
		dockind.NewImageHandler(store),
	)
	if err != nil {
		return fmt.Errorf("init kind registry: %w", err)
	}
	if err := registry.Validate(model.KindText, model.KindCode, model.KindSheet, model.KindImage); err != nil {
		return fmt.Errorf("kind registry incomplete: %w", err)
	}

	var streamLog stream.Log
	if cfg.Stream.Resumable {
		streamLog = service.NewStreamLog(streamRepo)
	}
	bridge := stream.NewBridge(streamLog, logutil.GetLogger(context.Background()))

	authService := service.NewAuthService(userRepo, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
	documentService := service.NewDocumentService(docRepo, cfg.Autosave.VersionMaxKeep)
	sessionManager := service.NewSessionManager(documentService, time.Duration(cfg.Autosave.DebounceMS)*time.Millisecond)
	dispatcher := service.NewToolDispatcher(registry, documentService, sessionManager)

	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	generator := ai.NewGenerator(aiProvider, cfg.AI.Model)
	generationService := service.NewGenerationService(bridge, streamRepo, generator, dispatcher)

	deps := handler.RouterDeps{
		Auth:      handler.NewAuthHandler(authService),
		Documents: handler.NewDocumentHandler(documentService, sessionManager),
		Streams:   handler.NewStreamHandler(generationService, bridge),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := schedule.NewCronScheduler()
	if cfg.Stream.Resumable {
		cleanup := job.NewStreamCleanupJob(streamRepo, time.Duration(cfg.Stream.RetainHours)*time.Hour)
		if err := sched.AddJob(cleanup, cfg.Stream.CleanupSpec); err != nil {
			return fmt.Errorf("schedule stream cleanup: %w", err)
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
