package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/storyfeed/config"
	"github.com/d60-Lab/storyfeed/internal/api"
	"github.com/d60-Lab/storyfeed/internal/api/handler"
	"github.com/d60-Lab/storyfeed/internal/cache"
	"github.com/d60-Lab/storyfeed/internal/repository"
	"github.com/d60-Lab/storyfeed/internal/service"
	"github.com/d60-Lab/storyfeed/pkg/database"
	"github.com/d60-Lab/storyfeed/pkg/logger"
	"github.com/d60-Lab/storyfeed/pkg/tracing"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.Server.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing := must(tracing.Init(context.Background(), "storyfeed", cfg.Trace.Endpoint))
	defer func() { _ = shutdownTracing(context.Background()) }()

	db := must(database.InitDB(cfg))
	rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	feedCache := cache.NewFeedCache(rdb, cfg.Feed.TTL)

	storyRepo := repository.NewStoryRepository(db)
	followRepo := repository.NewFollowRepository(db)
	userRepo := repository.NewUserRepository(db)

	fanout := service.NewFanoutEngine(followRepo, feedCache, cfg.Fanout.QueueSize, cfg.Fanout.PageSize)
	stopFanout := fanout.Start(cfg.Fanout.Workers)

	storySvc := service.NewStoryService(storyRepo, userRepo, feedCache, fanout, cfg.Story.MaxPerOwner)
	feedSvc := service.NewFeedService(storyRepo, followRepo, userRepo, feedCache, cfg.Fanout.PageSize)
	relSvc := service.NewRelationshipService(followRepo)

	var stopReaper func(context.Context) error
	if cfg.Reaper.Enabled {
		reaper := service.NewReaper(storyRepo, userRepo, feedCache, fanout, cfg.Reaper.Interval)
		stopReaper = reaper.Start()
	}

	h := handler.New(storySvc, feedSvc, relSvc)
	r := api.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = stopFanout(ctx)
	if stopReaper != nil {
		_ = stopReaper(ctx)
	}
	_ = rdb.Close()
}
