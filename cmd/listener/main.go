package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/0xmhha/bridge-listener/abi"
	"github.com/0xmhha/bridge-listener/api"
	"github.com/0xmhha/bridge-listener/checkpoint"
	"github.com/0xmhha/bridge-listener/client"
	"github.com/0xmhha/bridge-listener/dedup"
	"github.com/0xmhha/bridge-listener/fetch"
	"github.com/0xmhha/bridge-listener/handler"
	"github.com/0xmhha/bridge-listener/internal/config"
	"github.com/0xmhha/bridge-listener/internal/constants"
	"github.com/0xmhha/bridge-listener/internal/logger"
	"github.com/0xmhha/bridge-listener/listener"
	"github.com/0xmhha/bridge-listener/sink"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

type flags struct {
	configFile     string
	showVersion    bool
	once           bool
	sourceRPC      string
	destinationRPC string
	contract       string
	checkpointPath string
	startHeight    uint64
	chunkSize      uint64
	logLevel       string
	logFormat      string
	enableAPI      bool
	apiPort        int
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&f.showVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&f.once, "once", false, "Run a single polling cycle and exit")
	flag.StringVar(&f.sourceRPC, "source-rpc", "", "Source chain RPC endpoint URL")
	flag.StringVar(&f.destinationRPC, "destination-rpc", "", "Destination chain RPC endpoint URL")
	flag.StringVar(&f.contract, "contract", "", "Bridge contract address on the source chain")
	flag.StringVar(&f.checkpointPath, "checkpoint", "", "Checkpoint file (or pebble directory) path")
	flag.Uint64Var(&f.startHeight, "start-height", 0, "Height to start from when no checkpoint exists")
	flag.Uint64Var(&f.chunkSize, "chunk-size", 0, "Maximum number of blocks per log query")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.logFormat, "log-format", "", "Log format (json, console)")
	flag.BoolVar(&f.enableAPI, "api", false, "Enable status server")
	flag.IntVar(&f.apiPort, "api-port", 0, "Status server port")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	if f.showVersion {
		fmt.Printf("bridge-listener version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	if err := run(cfg, f.once, log); err != nil {
		log.Error("Listener failed", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and the environment, then applies
// command-line flags on top
func loadConfig(f *flags) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if f.configFile != "" {
		if err := cfg.LoadFromFile(f.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	applyFlags(cfg, f)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, f *flags) {
	if f.sourceRPC != "" {
		cfg.Source.Endpoint = f.sourceRPC
	}
	if f.destinationRPC != "" {
		cfg.Destination.Endpoint = f.destinationRPC
	}
	if f.contract != "" {
		cfg.Bridge.Contract = f.contract
	}
	if f.checkpointPath != "" {
		cfg.Checkpoint.Path = f.checkpointPath
	}
	if f.startHeight > 0 {
		cfg.Listener.StartHeight = f.startHeight
	}
	if f.chunkSize > 0 {
		cfg.Listener.ChunkSize = f.chunkSize
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.enableAPI {
		cfg.API.Enabled = true
	}
	if f.apiPort > 0 {
		cfg.API.Port = f.apiPort
	}
}

func run(cfg *config.Config, once bool, log *zap.Logger) error {
	sessionID := uuid.NewString()

	log.Info("Starting bridge listener",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("session_id", sessionID),
		zap.String("source_rpc", cfg.Source.Endpoint),
		zap.String("destination_rpc", cfg.Destination.Endpoint),
		zap.String("contract", cfg.Bridge.Contract),
		zap.Uint64("chunk_size", cfg.Listener.ChunkSize),
		zap.Duration("poll_interval", cfg.Listener.PollInterval),
		zap.Strings("sinks", cfg.Sink.Types),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Both chains must be reachable and serve the expected chain IDs before
	// the loop starts
	source, err := client.NewClient(ctx, &client.Config{
		Endpoint:  cfg.Source.Endpoint,
		ChainID:   cfg.Source.ChainID,
		Timeout:   cfg.Source.Timeout,
		RateLimit: cfg.Source.RateLimit,
		RateBurst: cfg.Source.RateBurst,
		Logger:    logger.WithComponent(log, "source"),
	})
	if err != nil {
		return fmt.Errorf("source chain: %w", err)
	}
	defer source.Close()

	destination, err := client.NewClient(ctx, &client.Config{
		Endpoint:  cfg.Destination.Endpoint,
		ChainID:   cfg.Destination.ChainID,
		Timeout:   cfg.Destination.Timeout,
		RateLimit: cfg.Destination.RateLimit,
		RateBurst: cfg.Destination.RateBurst,
		Logger:    logger.WithComponent(log, "destination"),
	})
	if err != nil {
		return fmt.Errorf("destination chain: %w", err)
	}
	defer destination.Close()

	store, err := checkpoint.Open(cfg.Checkpoint.Backend, cfg.Checkpoint.Path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close checkpoint store", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var hub *sink.Hub
	if cfg.Sink.HasSink(sink.TypeWebSocket) {
		hub = sink.NewHub(constants.DefaultWebSocketBuffer, log)
		go hub.Run()
		defer hub.Stop()
	}

	actions, err := sink.New(&cfg.Sink, hub, logger.WithComponent(log, "sink"))
	if err != nil {
		return fmt.Errorf("failed to create action sink: %w", err)
	}
	defer func() {
		if err := actions.Close(); err != nil {
			log.Error("Failed to close action sink", zap.Error(err))
		}
	}()

	decoder, err := abi.NewDecoder(cfg.Bridge.ABI, cfg.Bridge.EventName)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	fetcher, err := fetch.NewFetcher(source, decoder, &fetch.Config{
		Contract:   common.HexToAddress(cfg.Bridge.Contract),
		ChunkSize:  cfg.Listener.ChunkSize,
		MaxRetries: cfg.Listener.MaxRetries,
		RetryDelay: cfg.Listener.RetryDelay,
	}, logger.WithComponent(log, "fetch"))
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	filter := dedup.NewFilter()
	h, err := handler.NewHandler(actions, filter, &handler.Config{SessionID: sessionID},
		handler.NewMetrics(registry), logger.WithComponent(log, "handler"))
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	l, err := listener.New(listener.Deps{
		Chain:   source,
		Fetcher: fetcher,
		Handler: h,
		Store:   store,
		Dedup:   filter,
		Metrics: listener.NewMetrics(registry),
	}, &listener.Config{
		DestinationChainID: new(big.Int).SetUint64(cfg.Destination.ChainID),
		PollInterval:       cfg.Listener.PollInterval,
		StartHeight:        cfg.Listener.StartHeight,
	}, logger.WithComponent(log, "listener"))
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	if once {
		report, err := l.RunOnce(ctx)
		l.Close()
		log.Info("Single cycle finished",
			zap.Uint64("checkpoint", l.Checkpoint()),
			zap.Uint64("latest", report.Latest),
			zap.Int("windows", report.Windows),
			zap.Int("dispatched", report.Events.Dispatched),
			zap.Int("skipped_wrong_chain", report.Events.SkippedWrongChain),
			zap.Int("skipped_duplicate", report.Events.SkippedDuplicate),
			zap.Int("failed", report.Events.Failed),
		)
		return err
	}

	if cfg.API.Enabled {
		apiConfig := api.DefaultConfig()
		apiConfig.Host = cfg.API.Host
		apiConfig.Port = cfg.API.Port

		opts := api.Options{Status: l, Gatherer: registry, SessionID: sessionID}
		if hub != nil {
			opts.Stream = hub
		}

		apiServer, err := api.NewServer(apiConfig, logger.WithComponent(log, "api"), opts)
		if err != nil {
			return fmt.Errorf("failed to create status server: %w", err)
		}

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("Status server failed", zap.Error(err))
			}
		}()
		defer func() {
			if err := apiServer.Stop(context.Background()); err != nil {
				log.Error("Failed to stop status server gracefully", zap.Error(err))
			}
		}()
	}

	if err := l.Run(ctx); err != nil {
		return err
	}

	log.Info("Bridge listener stopped", zap.Uint64("checkpoint", l.Checkpoint()))
	return nil
}
