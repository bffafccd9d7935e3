package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/audit"
	"github.com/edustack-ai/llm-router/internal/config"
	"github.com/edustack-ai/llm-router/internal/features"
	"github.com/edustack-ai/llm-router/internal/orchestrator"
	"github.com/edustack-ai/llm-router/internal/providers"
	"github.com/edustack-ai/llm-router/internal/providers/anthropic"
	"github.com/edustack-ai/llm-router/internal/providers/openai"
	"github.com/edustack-ai/llm-router/internal/registry"
	"github.com/edustack-ai/llm-router/internal/routing"
	"github.com/edustack-ai/llm-router/internal/safety"
	"github.com/edustack-ai/llm-router/internal/server"
	"github.com/edustack-ai/llm-router/internal/telemetry"
)

// Application represents the main application
type Application struct {
	config       *config.Config
	orchestrator *orchestrator.Orchestrator
	server       *server.Server
	logger       *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	// Provider registry seeded from the configured fleet.
	reg := registry.New(logger)
	for _, p := range cfg.Providers.Fleet {
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", p.ID, err)
		}
	}
	logger.WithField("count", reg.Count()).Info("Provider fleet registered")

	extractor := features.NewExtractor()
	safetyLayer := safety.NewLayer(safety.NewSchemaCatalog(), logger)
	engine := routing.NewEngine(reg, extractor, cfg.Router.Scoring, logger)
	rollout := routing.NewRolloutPolicy(cfg.Router.Rollout())

	dispatcher := setupDispatcher(cfg, logger)

	trail := audit.NewTrail(cfg.Router.AuditMaxEntries, logger)
	metrics := telemetry.NewMetrics()

	orch := orchestrator.New(orchestrator.Deps{
		Registry:   reg,
		Extractor:  extractor,
		Safety:     safetyLayer,
		Engine:     engine,
		Rollout:    rollout,
		Dispatcher: dispatcher,
		Trail:      trail,
		Metrics:    metrics,
		Logger:     logger,
	}, cfg.Router.FallbackProvider, cfg.Router.RequestTimeout, cfg.Router.Budgets)

	if cfg.Router.Enabled {
		orch.Enable()
	}

	serverInstance := server.NewServer(orch, engine, metrics, &server.Config{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		Auth: server.AuthConfig{
			APIKeys:   cfg.Security.APIKeys,
			JWTSecret: cfg.Security.JWTSecret,
		},
	}, logger)

	return &Application{
		config:       cfg,
		orchestrator: orch,
		server:       serverInstance,
		logger:       logger,
	}, nil
}

// setupDispatcher wires real SDK adapters where credentials exist and the
// simulated invoker everywhere else.
func setupDispatcher(cfg *config.Config, logger *logrus.Logger) *providers.Dispatcher {
	limiter := providers.NewLimiter(logger)
	dispatcher := providers.NewDispatcher(providers.NewSimulated(), limiter, logger)

	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "" {
		dispatcher.Register("openai", openai.NewAdapter(cfg.Providers.OpenAI, logger))
		logger.WithField("provider_type", "openai").Info("OpenAI adapter registered")
	}
	if cfg.Providers.Anthropic != nil && cfg.Providers.Anthropic.APIKey != "" {
		dispatcher.Register("anthropic", anthropic.NewAdapter(cfg.Providers.Anthropic, logger))
		logger.WithField("provider_type", "anthropic").Info("Anthropic adapter registered")
	}

	return dispatcher
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.Info("Starting AI router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	app.logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	switch config.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		// Assume it's a file path
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY          OpenAI API key (enables real adapter)\n")
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY       Anthropic API key (enables real adapter)\n")
	fmt.Fprintf(os.Stderr, "  AI_ROUTER_PORT          Ops server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  AI_ROUTER_LOG_LEVEL     Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  AI_ROUTER_LOG_FORMAT    Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  AI_ROUTER_MODE          Rollout mode (shadow,canary,auto)\n")
	fmt.Fprintf(os.Stderr, "  AI_ROUTER_JWT_SECRET    Ops API JWT secret\n")
	fmt.Fprintf(os.Stderr, "  AI_ROUTER_API_KEY       Ops API static key\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  AI_ROUTER_MODE=canary %s\n", os.Args[0])
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *version {
		fmt.Printf("AI Router v1.0.0\n")
		os.Exit(0)
	}

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
