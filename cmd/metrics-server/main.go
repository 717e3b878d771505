// Command metrics-server exposes the configured warehouse as the
// metrics.fetch JSON-RPC method, over HTTP or as a one-shot stdio process.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	warehouse "adwatch-backend"
	"adwatch-backend/internal/config"
	"adwatch-backend/internal/metricsource"
	"adwatch-backend/pkg/log"
)

func main() {
	stdio := flag.Bool("stdio", false, "answer one request from stdin and exit")
	port := flag.String("port", "9000", "HTTP port")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		log.Init(log.ZapConfig{}).Errorf(ctx, "load config: %v", err)
		os.Exit(1)
	}
	// stdout carries the response in stdio mode; logs go to stderr either way.
	logger := log.Init(log.ZapConfig{Level: cfg.Logger.Level, Encoding: cfg.Logger.Encoding})
	if !cfg.Warehouse.Enabled() {
		logger.Errorf(ctx, "WAREHOUSE_TYPE is required")
		os.Exit(1)
	}
	file, err := config.LoadFile(cfg.Files.DetectorsPath)
	if err != nil {
		logger.Errorf(ctx, "load detectors config: %v", err)
		os.Exit(1)
	}
	connCfg, err := cfg.Warehouse.ConnectionConfig()
	if err != nil {
		logger.Errorf(ctx, "warehouse config: %v", err)
		os.Exit(1)
	}
	conn, err := warehouse.NewConnector(connCfg)
	if err != nil {
		logger.Errorf(ctx, "warehouse connector: %v", err)
		os.Exit(1)
	}
	defer conn.Close()
	source, err := metricsource.Connect(ctx, conn, file.Warehouse)
	if err != nil {
		logger.Errorf(ctx, "%v", err)
		os.Exit(1)
	}
	if err := source.Validate(ctx); err != nil {
		logger.Warnf(ctx, "warehouse mapping: %v", err)
	}

	server := &metricsource.Server{
		Source:  source,
		Timeout: 15 * time.Second,
		Logger:  logger,
	}
	if *stdio {
		if err := server.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
			logger.Errorf(ctx, "write response: %v", err)
			os.Exit(1)
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", server)
	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
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

	logger.Infof(ctx, "metrics-server listening on :%s", *port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf(ctx, "server error: %v", err)
	}
}
