package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/api"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/config"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/engine"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/store"
	ws "github.com/Priya8975/bulk-mail-dispatcher/internal/websocket"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir, logger); err != nil {
		return err
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	health := engine.NewHealthTracker(redisStore.Client(), logger)
	pool := engine.NewEndpointPool(pgStore, health, logger)
	jobs := engine.NewJobStore(pgStore, cfg.DefaultDelaySeconds, logger)
	dialer := worker.NewSMTPDialer(cfg.SMTPTimeout, cfg.SMTPInsecureSkipVerify, logger)
	hub := ws.NewHub(logger)
	runner := worker.NewRunner(jobs, pool, dialer, hub, logger)

	resumed, err := runner.Recover(ctx)
	if err != nil {
		return err
	}
	logger.Info("jobs restored from snapshots", "resumed", resumed, "known", len(jobs.List()))

	router := api.NewRouter(api.Dependencies{
		Jobs:     jobs,
		Runner:   runner,
		Pool:     pool,
		Verifier: dialer,
		Summary:  pgStore,
		Hub:      hub,
		Health: map[string]api.Pinger{
			"postgres": pgStore,
			"redis":    redisStore,
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		if err := runner.Shutdown(shutdownCtx); err != nil {
			logger.Error("dispatch loops did not stop in time", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// newLogger writes JSON to stdout and, when LOG_FILE is set, to a rotated file as well.
func newLogger(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
