package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/feichai0017/document-tables/config"
	"github.com/feichai0017/document-tables/internal/service/document"
	"github.com/feichai0017/document-tables/pkg/logger"
	"github.com/feichai0017/document-tables/pkg/queue"
	"github.com/feichai0017/document-tables/pkg/worker"
)

func main() {
	cfg, err := config.GetAppConfig()
	if err != nil {
		panic(err)
	}

	outputs := []string{"stdout"}
	if cfg.Log.File != "" {
		outputs = append(outputs, filepath.Join(filepath.Dir(cfg.Log.File), "worker.log"))
	}
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(outputs),
		logger.WithField("service", "worker"),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", logger.Error(err))
		os.Exit(1)
	}
	redisCfg := config.GetRedisConfig()
	if redisCfg.Addr == "" {
		log.Error("REDIS_ADDR is required to run the worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer rt.Close()

	documentWorker, err := worker.NewDocumentWorker(&worker.Config{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		Concurrency:   redisCfg.Concurrency,
		Queues:        map[string]int{queue.QueueDefault: 1},
	}, rt.Service, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.Int("concurrency", redisCfg.Concurrency))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	documentWorker.Stop()
	log.Info("Worker stopped")
}
