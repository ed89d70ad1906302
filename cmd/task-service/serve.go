package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"task-service/internal/auth"
	"task-service/internal/client"
	"task-service/internal/config"
	"task-service/internal/db"
	"task-service/internal/feed"
	httphandler "task-service/internal/http"
	"task-service/internal/http/middleware"
	"task-service/internal/idgen"
	"task-service/internal/logger"
	"task-service/internal/repository"
	"task-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the change-feed listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before serving")
	return cmd
}

func runServe(parent context.Context, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	if migrate {
		if err := db.Migrate(database, appLogger); err != nil {
			return err
		}
	}

	taskRepo := repository.NewTaskRepository(database)
	profileRepo := repository.NewProfileRepository(database)
	auditRepo := repository.NewAuditRepository(database)

	ids := idgen.NewCoordinator(taskRepo,
		idgen.WithMaxAttempts(cfg.Tasks.IDMaxAttempts),
		idgen.WithTimeout(cfg.Timeouts.UniquenessCheck),
	)

	storeCfg := service.DefaultStoreConfig()
	storeCfg.Timeouts = service.Timeouts{
		Check:  cfg.Timeouts.UniquenessCheck,
		Insert: cfg.Timeouts.Insert,
		Write:  cfg.Timeouts.Write,
		Fetch:  cfg.Timeouts.Fetch,
	}
	storeCfg.StaleTime = cfg.Sync.StaleTime
	storeCfg.UndoWindow = cfg.Tasks.UndoWindow
	storeCfg.SignedURLTTL = cfg.Tasks.SignedURLTTL
	storeCfg.BulkConcurrency = cfg.Tasks.BulkConcurrency

	storage := client.NewStorageClient(cfg)
	functions := client.NewFunctionsClient(cfg)

	taskStore := service.NewTaskStore(taskRepo, profileRepo, auditRepo, storage, ids, storeCfg, appLogger)
	dashboardService := service.NewDashboardService(taskStore)
	userService := service.NewUserService(profileRepo, functions)

	hub := feed.NewHub(appLogger)
	source := feed.NewPGSource(cfg.DB.DSN, cfg.Sync.Channel, appLogger)
	listener := feed.NewListener(taskStore, source, hub, feed.Config{
		PollInterval:   cfg.Sync.PollInterval,
		MaxRetries:     cfg.Sync.MaxRetries,
		RetryBaseDelay: cfg.Sync.RetryBaseDelay,
		RetryMaxDelay:  cfg.Sync.RetryMaxDelay,
	}, appLogger)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	authMiddleware := middleware.Auth(tokenParser, profileRepo)

	handler := httphandler.NewHandler(taskStore, dashboardService, userService, hub, listener, appLogger)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := httphandler.NewServer(addr, router, hub)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		appLogger.Info().Str("addr", addr).Msg("starting task service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		appLogger.Info().Msg("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
