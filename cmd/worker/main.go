package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/app"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/queue"
	"github.com/feichai0017/document-alerts/pkg/worker"
)

func main() {
	cfg := config.GetEngineConfig()

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEncoding(cfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize engine", logger.Error(err))
		os.Exit(1)
	}
	defer engine.Close()

	if err := engine.WatchRules(ctx); err != nil {
		log.Error("Rule watching disabled", logger.Error(err))
	}

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()
	statuses := queue.NewRedisStatusStore(redisClient, redisCfg.KeyPrefix, redisCfg.StatusTTL)

	// 创建 worker
	documentWorker, err := worker.NewDocumentWorker(&worker.Config{
		Queue:       queue.ConfigFromEnv(),
		Concurrency: cfg.WorkerConcurrency,
	}, engine.Analysis, statuses, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	// 启动 worker
	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	go cleanup(ctx, engine, log)

	<-ctx.Done()
	log.Info("Shutting down worker...")
	documentWorker.Stop()
	log.Info("Worker stopped")
}

// cleanup removes documents older than the retention period once an hour.
func cleanup(ctx context.Context, engine *app.App, log logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.Documents.Cleanup(ctx, engine.Config.RetentionPeriod); err != nil {
				log.Error("Document cleanup failed", logger.Error(err))
			}
		}
	}
}
