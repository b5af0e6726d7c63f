package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"splitledger/internal/amqp"
	"splitledger/internal/auth"
	"splitledger/internal/cache"
	"splitledger/internal/config"
	"splitledger/internal/core"
	"splitledger/internal/events"
	apphttp "splitledger/internal/http"
	"splitledger/internal/log"
	"splitledger/internal/services"
	"splitledger/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional: without it expenses still work, only cross-process
	// notification fan-out is lost.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without activity queue", log.FieldError, err)
		} else {
			publisher = amqpClient
			defer amqpClient.Close()
		}
	}

	broker := events.NewBroker()

	balanceCache := cache.NewLRUCache[[]core.Balance](cfg.BalanceCacheSize, cfg.BalanceCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(balanceCache)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	ledger := services.NewLedgerService(repo, publisher, broker, balanceCache)
	authService := auth.NewService(repo, cfg.SessionTTL)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:        ":" + cfg.Port,
		Ledger:      ledger,
		Auth:        authService,
		Repo:        repo,
		Broker:      broker,
		Publisher:   publisher,
		Logger:      logger,
		PollTimeout: cfg.SyncPollTimeout,
		RateLimit:   cfg.MutationRateLimit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting splitledger server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// expired session janitor
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				removed, err := repo.DeleteExpiredSessions(gctx)
				if err != nil {
					logger.Error("Session cleanup failed", log.FieldError, err)
					continue
				}
				if removed > 0 {
					logger.Info("Expired sessions removed", "count", removed)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
