package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-tables/api/handlers"
	"github.com/feichai0017/document-tables/api/middleware"
	"github.com/feichai0017/document-tables/api/routes"
	"github.com/feichai0017/document-tables/config"
	"github.com/feichai0017/document-tables/internal/service/document"
	"github.com/feichai0017/document-tables/pkg/logger"
)

func main() {
	cfg, err := config.GetAppConfig()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := newLogger(cfg.Log, "server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to get document service", logger.Error(err))
	}
	defer rt.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	h := handlers.NewHandlers(rt.Service, rt.DB, cfg.MaxFileSize(), log)
	routes.SetupRoutes(r, h, routes.Options{
		Auth:           middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Algorithm, log),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		rt.Close()
		log.Sync()
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func newLogger(cfg config.LogConfig, service string) (logger.Logger, error) {
	outputs := []string{"stdout"}
	if cfg.File != "" {
		outputs = append(outputs, cfg.File)
	}
	return logger.NewLogger(
		logger.WithLevel(cfg.Level),
		logger.WithEncoding(cfg.Encoding),
		logger.WithOutputPaths(outputs),
		logger.WithField("service", service),
	)
}
