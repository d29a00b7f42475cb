package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/cranesandcaff/inspectpack/internal/api"
	"github.com/cranesandcaff/inspectpack/internal/cache"
	"github.com/cranesandcaff/inspectpack/internal/cache/store"
	"github.com/cranesandcaff/inspectpack/internal/config"
	"github.com/cranesandcaff/inspectpack/internal/engine"
	"github.com/cranesandcaff/inspectpack/internal/observability"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
	configFile  = flag.String("config", "", "Path to inspectpack.yaml")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("inspectpackd %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting inspectpackd")

	cfg, err := config.Load(viper.New(), *configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	tracer, err := observability.NewTracer(context.Background(), observability.TracerConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, continuing without tracing")
		tracer, _ = observability.NewTracer(context.Background(), observability.TracerConfig{})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	st, err := store.New(&cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Cache.Driver).Msg("Failed to open cache store")
	}

	eng := engine.New(engine.Config{MaxDepth: cfg.Analysis.MaxDepth, Workers: cfg.Analysis.Workers})
	rc, err := cache.New(eng, st, cache.Options{MemoryEntries: cfg.Cache.MemoryEntries, Metrics: metrics})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create result cache")
	}

	var compactor *cache.Compactor
	if cfg.Cache.CompactSchedule != "" {
		if _, ok := st.(store.Compactor); ok {
			compactor, err = cache.NewCompactor(rc, cfg.Cache.CompactSchedule)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to schedule cache compaction")
			}
			compactor.Start()
		}
	}

	api.Version = Version
	server := api.NewServer(cfg, rc, metrics, tracer)

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting inspectpackd server")
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if compactor != nil {
		compactor.Stop()
	}
	if err := rc.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close cache store")
	}
	if err := tracer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
	}

	log.Info().Msg("Server exited")
}
