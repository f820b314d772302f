// Triaged is an autonomous error-intelligence daemon.
//
// This binary starts the triaged HTTP server with full pipeline
// initialization: pattern aggregation, trend analysis, semantic
// diagnosis, patch generation, task orchestration, and the
// knowledge-base learning loop.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	triaged
//
//	# Configure via file and environment
//	TRIAGED_SERVER_PORT=9180 triaged --config /etc/triaged/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/driftwoodlabs/triaged/internal/config"
	"github.com/driftwoodlabs/triaged/internal/diagnosis"
	"github.com/driftwoodlabs/triaged/internal/httpapi"
	"github.com/driftwoodlabs/triaged/internal/knowledge"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/logging"
	"github.com/driftwoodlabs/triaged/internal/patch"
	"github.com/driftwoodlabs/triaged/internal/patterns"
	"github.com/driftwoodlabs/triaged/internal/reasoning"
	"github.com/driftwoodlabs/triaged/internal/store"
	"github.com/driftwoodlabs/triaged/internal/tasks"
	"github.com/driftwoodlabs/triaged/internal/telemetry"
	"github.com/driftwoodlabs/triaged/internal/trends"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  triaged           Start the triaged daemon\n")
			fmt.Fprintf(os.Stderr, "  triaged version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("triaged by Driftwood Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the triaged server and blocks until context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	zl.Info("Starting triaged",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("reasoning_provider", cfg.Reasoning.Provider),
		zap.Bool("nats_enabled", cfg.Nats.Enabled),
	)

	var nc *nats.Conn
	if cfg.Nats.Enabled {
		nc, err = nats.Connect(cfg.Nats.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Nats.URL, err)
		}
		defer nc.Close()
		zl.Info("Connected to NATS", zap.String("url", cfg.Nats.URL))
	}

	st := store.NewMemory()

	srv, err := initServer(cfg, st, nc, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// initTelemetry builds the OTEL provider set from the main config.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Observability.Enabled
	tcfg.Endpoint = cfg.Observability.Endpoint
	tcfg.Insecure = cfg.Observability.Insecure
	tcfg.ServiceName = cfg.Observability.ServiceName
	tcfg.ServiceVersion = cfg.Observability.ServiceVersion
	return telemetry.New(ctx, tcfg)
}

// initLogger builds the structured logger from the main config.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	lcfg.Format = cfg.Log.Format

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	lcfg.Level = level

	if cfg.Observability.Enabled {
		lcfg.Output.OTEL = true
		return logging.NewLogger(lcfg, tel.LoggerProvider())
	}
	return logging.NewLogger(lcfg, nil)
}

// initServer wires all pipeline stages into the HTTP server.
func initServer(cfg *config.Config, st store.Store, nc *nats.Conn, zl *zap.Logger) (*httpapi.Server, error) {
	reasoner, err := reasoning.New(cfg.Reasoning, zl)
	if err != nil {
		return nil, fmt.Errorf("reasoning client: %w", err)
	}

	recorder, err := ledger.NewRecorder(st, nc, cfg.Nats.SubjectPrefix, zl)
	if err != nil {
		return nil, fmt.Errorf("ledger recorder: %w", err)
	}

	patternsSvc, err := patterns.NewService(st, zl)
	if err != nil {
		return nil, fmt.Errorf("patterns service: %w", err)
	}
	trendsSvc, err := trends.NewService(st, zl)
	if err != nil {
		return nil, fmt.Errorf("trends service: %w", err)
	}
	diagnosisSvc, err := diagnosis.NewService(st, reasoner, recorder, zl)
	if err != nil {
		return nil, fmt.Errorf("diagnosis service: %w", err)
	}
	patchSvc, err := patch.NewService(st, reasoner, diagnosisSvc, recorder, zl)
	if err != nil {
		return nil, fmt.Errorf("patch service: %w", err)
	}
	tasksSvc, err := tasks.NewService(st, recorder, zl)
	if err != nil {
		return nil, fmt.Errorf("tasks service: %w", err)
	}
	knowledgeSvc, err := knowledge.NewService(&knowledge.Config{
		HarvestWindow:  cfg.Pipeline.HarvestWindow.Duration(),
		MemoryLookback: cfg.Pipeline.MemoryLookback,
	}, st, recorder, zl)
	if err != nil {
		return nil, fmt.Errorf("knowledge service: %w", err)
	}

	return httpapi.NewServer(&httpapi.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Token:     cfg.Auth.Token.Value(),
		SystemKey: cfg.Auth.SystemKey.Value(),
	}, httpapi.Services{
		Patterns:  patternsSvc,
		Trends:    trendsSvc,
		Diagnosis: diagnosisSvc,
		Patches:   patchSvc,
		Tasks:     tasksSvc,
		Knowledge: knowledgeSvc,
	}, st, zl)
}
