package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/gateway"
	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/hub"
	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/quotestore"
	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/repository"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	source := repository.NewRedisStore(rdb, logger)
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := quotestore.New()
	wsHub := hub.NewHub(store, logger)

	// Warm the store so the first subscribers get a full snapshot
	initial, err := source.LoadAll(ctx)
	if err != nil {
		logger.Error("Failed to load snapshots", zap.Error(err))
	}
	for _, q := range initial {
		store.Upsert(q)
	}
	logger.Info("Quote store warmed", zap.Int("symbols", store.Len()))

	go func() {
		if err := source.Run(ctx, wsHub.Ingest); err != nil && ctx.Err() == nil {
			logger.Fatal("Upstream feed stopped", zap.Error(err))
		}
	}()
	go wsHub.Run(ctx, cfg.Gateway.BroadcastInterval)

	opts := gateway.Options{
		WriteWait:      cfg.Gateway.WriteWait,
		PongWait:       cfg.Gateway.PongWait,
		PingPeriod:     cfg.Gateway.PingPeriod,
		SendBuffer:     cfg.Gateway.SendBuffer,
		MaxMessageSize: cfg.Gateway.MaxMessageSize,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.Handler(wsHub, logger, opts))

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	wsHub.Shutdown()
	logger.Info("Shutdown Complete")
}
