package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vjranagit/fuzzratio/internal/config"
	"github.com/vjranagit/fuzzratio/pkg/analysis"
	"github.com/vjranagit/fuzzratio/pkg/api"
	"github.com/vjranagit/fuzzratio/pkg/report"
	"github.com/vjranagit/fuzzratio/pkg/sink"
	"github.com/vjranagit/fuzzratio/pkg/storage"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

const (
	version = "0.3.0"
)

func main() {
	var (
		limit      = flag.Float64("limit", 0, "stop reading each run after this many seconds")
		interval   = flag.Float64("interval", analysis.DefaultGridInterval, "resampling grid step in seconds")
		parallel   = flag.Int("parallel", 1, "runs processed concurrently (0 uses every CPU)")
		configPath = flag.String("config", "", "YAML configuration file")
		envFile    = flag.String("env", "", "dotenv file loaded before reading the environment")
		storePath  = flag.String("store", "", "persist run series in this directory")
		serveAddr  = flag.String("serve", "", "serve the HTTP API on this address after analysis")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "fuzzratio v%s\n\nUsage: %s [flags] <stats.json | name=stats.json>...\n\n", version, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	slog.SetDefault(logger)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("Failed to load env file: %v", err)
		}
	} else if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("ignoring .env", "error", err)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "limit":
			cfg.Analysis.TimeLimit = limit
		case "interval":
			cfg.Analysis.GridInterval = *interval
		case "parallel":
			cfg.Analysis.Parallelism = *parallel
		case "store":
			cfg.Storage.Enabled = true
			cfg.Storage.Path = *storePath
		case "serve":
			cfg.Server.ListenAddr = *serveAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Debug("configuration loaded",
		"interval", cfg.Analysis.GridInterval,
		"workers", cfg.Workers(),
		"storage", cfg.Storage.Enabled,
		"storage_path", cfg.Storage.Path,
	)

	sources := parseSources(flag.Args())

	var store storage.Storage
	out := sink.Multi{}
	if cfg.Storage.Enabled || *serveAddr != "" {
		sc := cfg.ToStorageConfig()
		sc.InMemory = !cfg.Storage.Enabled
		store, err = storage.NewStorage(sc)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		defer store.Close()
		out = append(out, sink.NewStoreSink(store))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := analysis.NewRunner(cfg.AnalysisOptions(), cfg.Workers(), out, logger)
	summaries, err := runner.Run(ctx, sources)
	if err != nil {
		logger.Error("some runs failed", "error", err)
	}

	tables := report.Tabulate(summaries)
	for _, t := range []report.Table{tables.Cumulative, tables.Current} {
		if t.Empty() {
			continue
		}
		if err := t.WriteText(os.Stdout); err != nil {
			log.Fatalf("Failed to write table: %v", err)
		}
		fmt.Println()
	}

	if *serveAddr == "" {
		return
	}

	server := api.NewServer(cfg.Server.ListenAddr, storage.NewCachedStorage(store, 256, time.Minute), logger)
	server.SetSummaries(summaries)

	go func() {
		logger.Info("API server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// parseSources turns name=path arguments into run sources. A bare path
// takes its name from the directory holding it.
func parseSources(args []string) []types.RunSource {
	sources := make([]types.RunSource, 0, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			path = arg
		}
		if name == "" || !ok {
			name = analysis.RunName(path)
		}
		sources = append(sources, types.RunSource{Name: name, Path: path})
	}
	return sources
}
