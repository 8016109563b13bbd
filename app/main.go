package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ianmintz/pourover/app/api"
	"github.com/ianmintz/pourover/app/cfg"
	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
	"github.com/ianmintz/pourover/app/ratelimit"
	"github.com/ianmintz/pourover/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Pourover", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	userRepo := database.NewUserRepository(db)
	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)

	publisher := feed.NewPublisher(userRepo, feedRepo, entryRepo,
		appCfg.PostAPIURL, appCfg.DefaultSchedulePeriod, appCfg.DefaultMaxPerPeriod)
	ingester := feed.NewIngester(entryRepo, feed.NewEnricher())
	fetcher := feed.NewFetcher(appCfg.UserAgent)
	processor := feed.NewProcessor(feedRepo, fetcher, ingester, publisher, appCfg.BaseUrl)

	if appCfg.SeedFile != "" {
		if err := applySeed(appCfg.SeedFile, userRepo, feedRepo, processor); err != nil {
			slog.Error("Failed to apply seed file", "path", appCfg.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	var limiter ratelimit.Limiter
	if appCfg.RedisAddr != "" {
		redisLimiter, err := ratelimit.NewRedis(ratelimit.RedisConfig{Addr: appCfg.RedisAddr},
			time.Duration(appCfg.JobRateLimit)*time.Second)
		if err != nil {
			slog.Error("Failed to connect to redis", "addr", appCfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
		slog.Info("Using redis rate limiter", "addr", appCfg.RedisAddr)
	} else {
		limiter = ratelimit.New(time.Duration(appCfg.JobRateLimit) * time.Second)
	}

	scheduler := tasks.NewScheduler(feedRepo, entryRepo, processor, publisher)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Scheduler started", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)

	handler := api.NewHandler(userRepo, feedRepo, entryRepo, processor, publisher, scheduler, limiter)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

// applySeed registers seed users and feeds. The whole path is
// idempotent: existing users are matched by token, existing feeds by
// (user, url), so restarts with the same file are safe.
func applySeed(path string, userRepo database.UserRepository,
	feedRepo database.FeedRepository, processor *feed.Processor) error {
	seed, err := cfg.LoadSeed(path)
	if err != nil {
		return err
	}

	registered := 0
	for _, seedUser := range seed.Users {
		user, err := userRepo.GetUserByToken(seedUser.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to look up seed user: %w", err)
		}
		if user == nil {
			if user, err = userRepo.CreateUser(seedUser.AccessToken); err != nil {
				return fmt.Errorf("failed to create seed user: %w", err)
			}
		}

		for _, seedFeed := range seedUser.Feeds {
			existing, err := feedRepo.GetFeedByURL(user.ID, seedFeed.URL)
			if err != nil {
				return fmt.Errorf("failed to look up seed feed: %w", err)
			}
			if existing != nil {
				continue
			}

			fd := &database.Feed{
				UserID:          user.ID,
				Type:            database.FeedType(seedFeed.Type),
				FeedURL:         seedFeed.URL,
				InstagramUserID: seedFeed.InstagramID,
				IncludeSummary:  seedFeed.IncludeSummary,
				IncludeThumb:    seedFeed.IncludeThumb,
				ExtractContent:  seedFeed.ExtractContent,
			}
			if err := feedRepo.CreateFeed(fd); err != nil {
				return fmt.Errorf("failed to create seed feed %s: %w", seedFeed.URL, err)
			}

			if err := processor.ProcessNewFeed(context.Background(), fd); err != nil {
				slog.Warn("Seed feed first import failed", "url", seedFeed.URL, "error", err)
			}
			registered++
		}
	}

	slog.Info("Seed applied", "users", len(seed.Users), "new_feeds", registered)
	return nil
}
