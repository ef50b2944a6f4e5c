package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"coffeeshop/internal/api"
	"coffeeshop/internal/config"
	"coffeeshop/internal/worker"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "coffeeshop.yaml", "Path to configuration file")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)

	// Ctrl+C or SIGTERM stops every worker after its current cycle.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(cfg, nil)

	if cfg.StatusAddr != "" {
		srvCtx, cancelSrv := context.WithCancel(ctx)
		defer cancelSrv()
		go func() {
			if err := api.NewServer(pool).Run(srvCtx, cfg.StatusAddr); err != nil {
				logrus.Errorf("status server stopped: %v", err)
			}
		}()
	}

	err = pool.Run(ctx)
	switch {
	case err == nil:
		logrus.Info("all workers stopped")
	case errors.Is(err, config.ErrConfiguration):
		logrus.Fatalf("invalid configuration: %v", err)
	default:
		logrus.Fatalf("workers terminated with error: %v", err)
	}
}
