// Package main implements the import-measurements CLI tool for bulk loading
// a patient's measurement export directly into the database, bypassing the
// API's upload size limit.
//
// Usage:
//
//	go run ./cmd/tools/import-measurements --user=<user-id> --file=export.ndjson
//	zstd -c export.ndjson | go run ./cmd/tools/import-measurements --user=<user-id>
//
// The input is newline-delimited JSON, optionally zstd-compressed (detected
// automatically). The tool reads DATABASE_URL from environment variables (or
// a .env file via godotenv) and prints the import statistics as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cardiometrix/internal/config"
	"cardiometrix/internal/db"
	"cardiometrix/internal/importer"
)

func main() {
	userID := flag.String("user", "", "target user ID (required)")
	file := flag.String("file", "", "input file; reads stdin when omitted")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if err := run(*userID, *file, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(userID, file string, verbose bool) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Only the database is needed here, so the full config (which requires
	// scorer credentials) is deliberately not loaded.
	_ = godotenv.Load()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, config.DatabaseConfig{
		URL:      dbURL,
		MaxConns: 2,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var input io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("opening input file: %w", err)
		}
		defer f.Close()
		input = f
	}

	imp := importer.New(db.NewMeasurementRepository(pool), logger)
	stats, err := imp.Import(ctx, userID, input)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	return json.NewEncoder(os.Stdout).Encode(stats)
}
