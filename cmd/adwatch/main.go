// Command adwatch runs every configured detector once and prints the
// resulting alert batch as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"adwatch-backend/internal/app"
	"adwatch-backend/internal/bus"
	"adwatch-backend/internal/config"
	"adwatch-backend/internal/remediation"
	"adwatch-backend/pkg/log"
)

func main() {
	detectors := flag.String("config", "", "detectors YAML (defaults to DETECTORS_CONFIG_PATH)")
	remediate := flag.Bool("remediate", false, "also print the remediation for every surfaced alert")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := log.Init(log.ZapConfig{Level: cfg.Logger.Level, Encoding: log.EncodingConsole})
	if *detectors != "" {
		cfg.Files.DetectorsPath = *detectors
	}
	file, err := config.LoadFile(cfg.Files.DetectorsPath)
	if err != nil {
		logger.Errorf(ctx, "load detectors config: %v", err)
		os.Exit(1)
	}

	a, err := app.Build(ctx, cfg, file, bus.Discard{}, logger)
	if err != nil {
		logger.Errorf(ctx, "build: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	batch, _, err := a.Runner.RunOnce(ctx)
	if err != nil {
		logger.Errorf(ctx, "run: %v", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batch); err != nil {
		logger.Errorf(ctx, "encode batch: %v", err)
		os.Exit(1)
	}
	if !*remediate {
		return
	}
	remediations := make([]remediation.Remediation, 0, len(batch.Alerts))
	for _, alert := range batch.Alerts {
		remediations = append(remediations, a.Orchestrator.Remediate(ctx, alert, a.RemedyOpts))
	}
	if err := enc.Encode(remediations); err != nil {
		logger.Errorf(ctx, "encode remediations: %v", err)
		os.Exit(1)
	}
}
