package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/llm/middleware/metrics"
	"ghostwriter/pkg/llm/providers"
	"ghostwriter/pkg/logx"
	"ghostwriter/pkg/persistence"
	"ghostwriter/pkg/session"
	"ghostwriter/pkg/webui"
)

func main() {
	var configPath string
	var debugMode bool
	flag.StringVar(&configPath, "config", "", "Path to config file (YAML)")
	flag.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if debugMode {
		logx.SetDebug(true)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	apiKey, err := config.EnsureAPIKey(cfg)
	if err != nil {
		log.Fatalf("Failed to resolve API key: %v", err)
	}

	if err := persistence.Initialize(cfg.DatabasePath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	client, err := providers.NewClient(cfg, apiKey)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	logger := logx.NewLogger("ghostwriter")
	logger.Info("Using %s model %s", cfg.LLM.Provider, cfg.LLM.Model)

	store := persistence.Ops()
	recorder := metrics.NewPrometheusRecorder()
	manager := session.NewManager(session.Deps{
		Cfg:      cfg,
		Store:    store,
		Client:   client,
		Recorder: recorder,
	})

	server := webui.NewServer(cfg, store, manager, client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Blocks until the context is cancelled and the listener drains.
	if err := server.Start(ctx); err != nil {
		logger.Error("%v", err)
	}

	logger.Info("Stopping sessions")
	manager.Shutdown()

	if err := persistence.Close(); err != nil {
		logger.Warn("Database close failed: %v", err)
	}
	logger.Info("Shutdown complete")
}
