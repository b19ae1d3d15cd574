package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/generator"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/option-chain-feed/pkg/config"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	// 2. Initialize Zap Logger
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 3. Build the chain
	rnd := generator.NewRand(cfg.Feed.Seed)
	chain, err := generator.NewCatalog(generator.CatalogConfig{
		Symbol:          cfg.Feed.Symbol,
		BaseStrike:      cfg.Feed.BaseStrike,
		StrikeStep:      cfg.Feed.StrikeStep,
		StrikeCount:     cfg.Feed.StrikeCount,
		UnderlyingPrice: cfg.Feed.UnderlyingPrice,
	}, rnd)
	if err != nil {
		logger.Fatal("Failed to build option chain", zap.Error(err))
	}
	logger.Info("Option chain ready", zap.String("symbol", chain.Symbol()), zap.Int("strikes", chain.Len()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Tick sinks (optional)
	pub := repository.NewPublisher(cfg.Publisher.Buffer, logger, m, sinks(ctx, cfg, logger)...)
	go pub.Run(ctx)

	// 5. Hub + tick loop
	mutator := generator.NewRandomWalk(generator.MutatorConfig{
		MaxPerTick:            cfg.Feed.MaxPerTick,
		SelectFraction:        cfg.Feed.SelectFraction,
		MaxDelta:              cfg.Feed.MaxDelta,
		UnderlyingProbability: cfg.Feed.UnderlyingProbability,
		UnderlyingMaxDelta:    cfg.Feed.UnderlyingMaxDelta,
		MinPrice:              cfg.Feed.MinPrice,
	})
	wsHub := hub.NewHub(hub.Config{TickInterval: cfg.Feed.TickInterval}, chain, mutator, rnd, pub, m, logger)
	go wsHub.Run(ctx)

	// 6. HTTP surface
	srv := gateway.NewServer(cfg.App.Port, wsHub, gateway.Options{
		SendBuffer:        cfg.Gateway.SendBuffer,
		MaxMessageSize:    cfg.Gateway.MaxMessageSize,
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		InboundRate:       cfg.Gateway.InboundRate,
		InboundBurst:      cfg.Gateway.InboundBurst,
	}, m, reg, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	// 7. Wait for Shutdown Signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	// 8. Flush sinks
	cancel()
	pub.Wait()
	logger.Info("Shutdown Complete")
}

func sinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) []repository.TickSink {
	var out []repository.TickSink

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, mirroring anyway", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		out = append(out, repository.NewRedisSink(rdb, cfg.Redis.TTL))
		logger.Info("Redis sink enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Kafka.Enabled {
		creator := repository.NewTopicCreator(logger, &repository.RealKafkaDialer{Dialer: kafka.DefaultDialer}, repository.RealClock{})
		if err := creator.Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
			logger.Warn("Topic setup failed", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
		}
		out = append(out, repository.NewKafkaSink(repository.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)))
		logger.Info("Kafka sink enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	return out
}
