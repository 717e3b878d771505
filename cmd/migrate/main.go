package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"adwatch-backend/pkg/log"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migrations")
	flag.Parse()

	ctx := context.Background()
	logger := log.Init(log.ZapConfig{Level: os.Getenv("LOG_LEVEL"), Encoding: os.Getenv("LOG_ENCODING")})
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Errorf(ctx, "DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf(ctx, "failed to connect: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		logger.Errorf(ctx, "failed to list migrations: %v", err)
		os.Exit(1)
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Errorf(ctx, "failed to read migration %s: %v", file, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			logger.Errorf(ctx, "failed to apply migration %s: %v", file, err)
			os.Exit(1)
		}
		logger.Infof(ctx, "applied migration %s", file)
	}
}
