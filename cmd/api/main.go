package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/lumi/backend/internal/config"
	"github.com/zhouzirui/lumi/backend/internal/handler"
	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/insights"
	"github.com/zhouzirui/lumi/backend/internal/service/remote"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/internal/storage/kv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lumi: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("failed to load .env file, using process environment", zap.Error(envErr))
	}

	store, err := kv.Open(cfg.Storage.Backend, cfg.Storage.ResolvedPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", zap.Error(err))
		}
	}()
	logger.Info("state store opened",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("path", cfg.Storage.ResolvedPath()))

	client := remote.FromConfig(ctx, cfg, logger)
	logger.Info("remote api", zap.Bool("configured", cfg.HasRemoteAPI()))

	sessions := session.NewService(store, client,
		session.WithLogger(logger),
		session.WithFeedbackRate(cfg.Feedback.Rate, cfg.Feedback.Burst))
	defer sessions.Close()

	insightSvc := insights.NewService(sessions, client, logger)
	router := handler.NewRouter(sessions, insightSvc, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("LUMI backend listening", zap.String("addr", srv.Addr))
	return runServer(ctx, srv)
}

// runServer serves until ctx is cancelled, then drains within ten seconds.
func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
