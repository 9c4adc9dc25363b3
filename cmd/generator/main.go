package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/generator/internal/generator"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/config"
)

// reference closes for the default tickers; anything else starts at 100
var basePrices = map[string]float64{
	"AAPL": 150.0, "GOOG": 2800.0, "TSLA": 700.0, "AMZN": 3400.0, "MSFT": 300.0,
}

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

	// Ensure the topic exists before producing
	dialer := &generator.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 10 * time.Second}}
	if err := generator.NewTopicCreator(logger, dialer, generator.RealClock{}).Create(context.Background(), cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
		// the writer can still auto-create on brokers that allow it
		logger.Warn("Topic setup incomplete", zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{}, // same symbol, same partition
		// Optimization: Send batches to reduce network IO
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rnd := generator.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	gen := generator.NewQuoteGenerator(logger, writer, cfg.Generator.Tickers, basePrices, rnd, generator.RealClock{}, cfg.Generator.Interval)
	gen.Run(ctx)

	logger.Info("Shutdown signal received")

	// Flush Kafka Buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
