package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier/internal/changefeed"
	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/database"
	"courier/internal/models"
	"courier/internal/ratelimit"
	"courier/internal/retry"
	"courier/internal/service"
	"courier/internal/tracing"
	"courier/pkg/email"
	"courier/pkg/messaging"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Courier %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting Courier")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg)

	authTokens, err := config.AuthTokensFromEnv()
	if err != nil {
		return fmt.Errorf("failed to parse auth tokens: %w", err)
	}
	if len(authTokens) == 0 {
		logger.Warn("No auth tokens configured, all API requests will be rejected")
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	guard := newSendGuard(ctx, cfg, logger)

	messagingClient := messaging.NewClient(messaging.ClientConfig{
		BaseURL:    cfg.Messaging.APIBaseURL,
		APIKey:     os.Getenv("COURIER_MESSAGING_API_KEY"),
		FromNumber: cfg.Messaging.FromNumber,
		Timeout:    time.Duration(cfg.Messaging.TimeoutSec) * time.Second,
	})
	emailClient := email.NewClient(email.ClientConfig{
		BaseURL:     cfg.Email.APIBaseURL,
		APIKey:      os.Getenv("COURIER_EMAIL_API_KEY"),
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Timeout:     time.Duration(cfg.Email.TimeoutSec) * time.Second,
	})
	sender := service.NewChannelSender(messagingClient, emailClient)

	feed := changefeed.NewFeed(logger)
	db.SetChangeListener(func(change models.DeliveryChange) {
		feed.Publish(change)
	})

	dispatcher := service.NewDispatcher(db, sender, guard, cfg.RateLimit, cfg.Messaging.DefaultCountry, logger)

	queueWorker := service.NewQueueWorker(db, sender, guard, cfg.RateLimit,
		time.Duration(cfg.Reminders.QueueDrainSec)*time.Second, constants.DefaultQueueBatchSize, logger)
	queueWorker.Start(ctx)
	defer queueWorker.Stop()

	reminders := service.NewReminderEngine(db, dispatcher, cfg.Reminders, logger)
	scheduler := service.NewScheduler(reminders,
		time.Duration(cfg.Reminders.IntervalMinutes)*time.Minute, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(cfg, dispatcher, reminders, db, feed, authTokens, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled")
		return
	}
	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// newSendGuard picks the shared Redis counter backend when one is configured
// and falls back to process-local counters otherwise.
func newSendGuard(ctx context.Context, cfg *models.Config, logger *logrus.Logger) *ratelimit.Limiter {
	if cfg.Redis.Addr == "" {
		logger.Info("No Redis backend configured, rate limit counters are process-local")
		return ratelimit.NewLimiter(ratelimit.NewMemoryStore(), logger)
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unreachable at startup, limiter fails open until it recovers")
	} else {
		logger.WithField("addr", cfg.Redis.Addr).Info("Rate limit counters backed by Redis")
	}

	return ratelimit.NewLimiter(ratelimit.NewRedisStore(client), logger)
}
