package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"github.com/you/arb-exec/internal/bot"
	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := bot.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	bot.New(cfg, logger).Run(ctx)
}
