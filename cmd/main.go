package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"devicemonitor/internal/api"
	"devicemonitor/internal/clock"
	"devicemonitor/internal/config"
	"devicemonitor/internal/ha"
	"devicemonitor/internal/i18n"
	"devicemonitor/internal/metrics"
	"devicemonitor/internal/monitor"
	"devicemonitor/internal/publish"
	"devicemonitor/internal/state"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	settings, err := config.SettingsFromEnv(os.Getenv)
	if err != nil {
		logger.Fatal("Invalid settings", zap.Error(err))
	}

	logger.Info("Starting Device Monitor",
		zap.String("url", settings.HAURL),
		zap.String("config_dir", settings.ConfigDir),
		zap.Bool("mqtt", settings.MQTT.Enabled()))

	loader := config.NewLoader(settings.ConfigDir, logger)
	if err := loader.LoadMonitors(); err != nil {
		logger.Fatal("Failed to load monitors", zap.Error(err))
	}

	catalog, err := i18n.Load()
	if err != nil {
		logger.Fatal("Failed to load translations", zap.Error(err))
	}

	var monitors []*monitor.Monitor
	for _, cfg := range loader.GetMonitors() {
		lang := cfg.Language
		if lang == "" {
			lang = settings.Language
		}
		m, err := monitor.New(cfg, catalog.Translator(lang), logger)
		if err != nil {
			logger.Fatal("Failed to create monitor", zap.String("monitor", cfg.Name), zap.Error(err))
		}
		monitors = append(monitors, m)
	}

	// Create HA client
	client := ha.NewClient(settings.HAURL, settings.HAToken, logger)
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer client.Disconnect()

	logger.Info("Connected to Home Assistant")

	stateManager := state.NewManager(client, logger)
	if err := stateManager.Start(); err != nil {
		logger.Fatal("Failed to start state manager", zap.Error(err))
	}
	defer stateManager.Stop()

	recorder := metrics.NewRecorder()

	var broker publish.Broker
	if settings.MQTT.Enabled() {
		b, err := publish.ConnectMQTT(settings.MQTT, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT", zap.Error(err))
		}
		broker = b
	}

	publisher := publish.NewPublisher(monitors, publish.Options{
		Broker:   broker,
		Recorder: recorder,
		Clock:    clock.NewRealClock(),
		Debounce: settings.RenderDebounce,
		Prefix:   settings.MQTT.Prefix,
	}, logger)
	defer publisher.Stop()

	sub := stateManager.Subscribe(publisher.Notify)
	defer sub.Unsubscribe()
	publisher.Render(stateManager.Snapshot())

	server := api.NewServer(stateManager, monitors, recorder, logger, settings.APIPort)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Device Monitor running", zap.Int("monitors", len(monitors)))
	<-sigChan

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}
}
