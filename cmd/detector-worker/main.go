package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"adwatch-backend/internal/app"
	"adwatch-backend/internal/bus"
	"adwatch-backend/internal/config"
	"adwatch-backend/internal/scheduler"
	"adwatch-backend/pkg/log"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		log.Init(log.ZapConfig{}).Errorf(ctx, "load config: %v", err)
		os.Exit(1)
	}
	logger := log.Init(log.ZapConfig{Level: cfg.Logger.Level, Encoding: cfg.Logger.Encoding})

	file, err := config.LoadFile(cfg.Files.DetectorsPath)
	if err != nil {
		logger.Errorf(ctx, "load detectors config %s: %v", cfg.Files.DetectorsPath, err)
		os.Exit(1)
	}

	var publisher scheduler.Publisher = bus.Discard{}
	var nc *bus.Publisher
	if cfg.NATS.URL != "" {
		nc, err = bus.NewPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Errorf(ctx, "connect nats: %v", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = nc
	}

	a, err := app.Build(ctx, cfg, file, publisher, logger)
	if err != nil {
		logger.Errorf(ctx, "build: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	if nc != nil {
		_, err := nc.Subscribe(bus.SubjectRunRequested, func(req bus.RunRequest) {
			if !a.Runner.Trigger() {
				logger.Infof(ctx, "run request ignored, a run is in progress")
				return
			}
			logger.Infof(ctx, "run requested: %s", req.Reason)
		})
		if err != nil {
			logger.Warnf(ctx, "subscribe %s: %v", bus.SubjectRunRequested, err)
		}
	}

	a.Runner.Start(cfg.Worker.RunInterval)
	defer a.Runner.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	a.Handler().RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Worker.AdminPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Infof(ctx, "detector-worker listening on :%s, %d detectors, %d entities", cfg.Worker.AdminPort, len(a.Detectors.Detectors()), len(file.Entities))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf(ctx, "server error: %v", err)
	}
}
