// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command bulk_calculate_story_orders backfills story orders left NULL after
// high volume ingestion.
//
// # Usage
//
//	bulk_calculate_story_orders [--batch-size N] [--log-interval N] [--create-index]
//
// The database is read from DATABASE_URL. The process exits 0 once no NULL
// row can be ordered any further (rows stalled on cyclic dependencies are
// reported, not fatal), 2 on invalid flags and 1 on any other error. SIGINT
// and SIGTERM abort the current batch, which is rolled back.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/taibuivan/historyatlas/internal/core/ordering"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/config"
	"github.com/taibuivan/historyatlas/internal/platform/constants"
	pgstore "github.com/taibuivan/historyatlas/internal/platform/postgres"
)

const commandName = "bulk_calculate_story_orders"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks flag errors, which exit with [exitUsage].
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns its exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	settings, err := config.LoadBulkSettings()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	// Flags are checked before the full configuration, so --help and usage
	// errors do not need a database.
	options, err := parseFlags(args, settings.BulkBatchSize, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", constants.AppName), slog.String("command", commandName))

	if _, err := reorder(ctx, cfg, options, logger); err != nil {
		logger.Error("bulk_reorder_failed", slog.Any("error", err))
		return exitError
	}
	return exitOK
}

// parseFlags reads the command line into reorderer options.
func parseFlags(args []string, defaultBatchSize int, output io.Writer) (ordering.Options, error) {
	options := ordering.Options{}

	flagSet := pflag.NewFlagSet(commandName, pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.IntVar(&options.BatchSize, "batch-size", defaultBatchSize, "NULL rows loaded and ordered per transaction")
	flagSet.IntVar(&options.LogInterval, "log-interval", ordering.DefaultLogInterval, "log progress every N batches")
	flagSet.BoolVar(&options.CreateIndex, "create-index", false, "build a temporary partial index over NULL rows for the run")

	if err := flagSet.Parse(args); err != nil {
		return options, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options, fmt.Errorf("%w: unexpected argument %q", errUsage, rest[0])
	}
	if options.BatchSize < 1 {
		return options, fmt.Errorf("%w: --batch-size must be positive, got %d", errUsage, options.BatchSize)
	}
	if options.LogInterval < 1 {
		return options, fmt.Errorf("%w: --log-interval must be positive, got %d", errUsage, options.LogInterval)
	}
	return options, nil
}

// reorder connects to the database and runs the reorderer to completion.
func reorder(ctx context.Context, cfg *config.Config, options ordering.Options, logger *slog.Logger) (ordering.Report, error) {
	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, pgstore.BulkOptions(), logger)
	if err != nil {
		return ordering.Report{}, err
	}
	defer pool.Close()

	return ordering.NewReorderer(storyindex.NewPostgresIndex(pool), options, logger).Run(ctx)
}
