package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/geoscore/internal/app"
	"github.com/seanblong/geoscore/internal/config"
	"github.com/seanblong/geoscore/internal/indexer"
)

func main() {
	fs := pflag.NewFlagSet("geoscore-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	// The report goes to stdout; logs go to stderr.
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zlog.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	ic := cfg.Indexer
	if ic.Tenant == "" {
		logger.Warn().Msg("no tenant set; pages are scored but not stored")
	}
	if cfg.Database == "" && ic.Tenant != "" {
		logger.Warn().Msg("no database configured; stored pages are discarded on exit")
	}

	// Pages are only stored and compared when a vector store is available.
	var (
		sink indexer.Sink
		sim  indexer.Similarity
	)
	if a.Search != nil {
		sink, sim = a.Enhancer, a.Search
	}
	ix := indexer.New(a.Engine, sink, sim, ic.Root, ic.BaseURL, ic.Tenant)
	ix.Workers = ic.Workers
	ix.FetchedAt = time.Now().UTC()

	report, err := ix.Run(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		logger.Error().Err(encErr).Msg("failed to write report")
	}
	if err != nil {
		logger.Error().Err(err).Msg("indexing failed")
		a.Close()
		os.Exit(1)
	}
	if report.Failed > 0 {
		a.Close()
		os.Exit(2)
	}
}
