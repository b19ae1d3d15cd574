package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/shubham-shewale/option-chain-feed/pkg/config"
	"github.com/shubham-shewale/option-chain-feed/pkg/feedclient"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

func main() {
	tokens := flag.String("tokens", "UNDERLYING", "comma separated tokens to watch")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := feedclient.New(feedclient.ConfigFrom(cfg.Client), logger)
	defer client.Close()

	if _, err := client.Attach(feedclient.Handlers{
		OnInitialData: func(s models.ChainSnapshot) {
			logger.Info("Snapshot", zap.String("symbol", s.Symbol), zap.Float64("underlying", s.UnderlyingPrice), zap.Int("strikes", len(s.Strikes)))
		},
		OnPriceUpdate: func(u models.TickDiff) {
			for token, q := range u {
				logger.Info("Price", zap.String("token", token), zap.Float64("price", q.Price), zap.Float64("percent_change", q.PercentChange))
			}
		},
		OnSubscriptionUpdate: func(tokens []string) {
			logger.Info("Subscriptions", zap.Strings("tokens", tokens))
		},
		OnConnectionStatus: func(connected bool) {
			logger.Info("Connection", zap.Bool("connected", connected))
		},
		OnReconnecting: func(attempt, maxAttempts int) {
			logger.Warn("Reconnecting", zap.Int("attempt", attempt), zap.Int("max", maxAttempts))
		},
		OnError: func(msg string) {
			logger.Error("Feed failed", zap.String("error", msg))
			stop()
		},
	}); err != nil {
		logger.Fatal("Attach failed", zap.Error(err))
	}

	if err := client.Subscribe(strings.Split(*tokens, ",")...); err != nil {
		logger.Fatal("Subscribe failed", zap.Error(err))
	}
	if err := client.Start(ctx); err != nil {
		logger.Fatal("Start failed", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("Watcher stopped")
}
