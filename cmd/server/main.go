package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/feichai0017/document-alerts/api/handlers"
	"github.com/feichai0017/document-alerts/api/routes"
	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/app"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/queue"
)

func main() {
	cfg := config.GetEngineConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEncoding(cfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init engine
	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize engine", logger.Error(err))
	}
	defer engine.Close()

	if err := engine.WatchRules(ctx); err != nil {
		log.Error("Rule watching disabled", logger.Error(err))
	}

	q, err := queue.GetQueue()
	if err != nil {
		log.Fatal("Failed to initialize queue", logger.Error(err))
	}
	defer q.Close()

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	// init handlers
	h := handlers.NewHandlers(handlers.Deps{
		Documents:   engine.Documents,
		Analyzer:    engine.Analysis,
		Alerts:      engine.Alerts,
		Queue:       q,
		Statuses:    queue.NewRedisStatusStore(redisClient, redisCfg.KeyPrefix, redisCfg.StatusTTL),
		MaxFileSize: cfg.MaxFileSize,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, log)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	// grpc health
	healthSrv := health.NewServer()
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			log.Error("Health listener error", logger.Error(err))
			return
		}
		log.Info("Health server starting", logger.String("addr", cfg.GRPCHealthAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("Health server error", logger.Error(err))
		}
	}()

	go monitorHealth(ctx, engine, healthSrv, log)

	<-ctx.Done()
	log.Info("Shutting down server...")
	healthSrv.Shutdown()

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	grpcSrv.GracefulStop()
}

// monitorHealth reports SERVING while the alert store answers pings.
func monitorHealth(ctx context.Context, engine *app.App, hs *health.Server, log logger.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		status := healthpb.HealthCheckResponse_SERVING
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := engine.Alerts.Ping(pingCtx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if last != status {
				log.Warn("Alert store unavailable", logger.Error(err))
			}
		}
		cancel()
		if status != last {
			hs.SetServingStatus("", status)
			last = status
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
