package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/voice-pipeline/internal/capture"
	"github.com/skypro1111/voice-pipeline/internal/config"
	"github.com/skypro1111/voice-pipeline/internal/metrics"
	"github.com/skypro1111/voice-pipeline/internal/pipeline"
	"github.com/skypro1111/voice-pipeline/internal/server"
	"github.com/skypro1111/voice-pipeline/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-pipeline"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	record := flag.Duration("record", 0, "Record for this long, print the transcript and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("capture_driver", cfg.Capture.Driver),
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Duration("chunk_interval", cfg.Capture.GetChunkInterval()),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.Duration("transcription_timeout", cfg.Transcription.GetTimeoutDuration()),
		slog.Int("max_retries", cfg.Transcription.MaxRetries),
		slog.Duration("submit_timeout", cfg.Pipeline.GetSubmitTimeout()),
		slog.String("log_level", cfg.Logging.Level),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	device, err := capture.Open(capture.Config{
		Driver:        cfg.Capture.Driver,
		FilePath:      cfg.Capture.FilePath,
		SampleRate:    cfg.Capture.SampleRate,
		Channels:      cfg.Capture.Channels,
		ChunkInterval: cfg.Capture.GetChunkInterval(),
		Realtime:      cfg.Capture.Realtime,
	}, logger)
	if err != nil {
		logger.Error("Failed to open capture device", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		FieldName:     cfg.Transcription.FieldName,
		FileName:      cfg.Transcription.FileName,
	}, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	p := pipeline.New(device, client, pipeline.Config{
		SubmitTimeout: cfg.Pipeline.GetSubmitTimeout(),
	}, logger, appMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *record > 0 {
		code := recordOnce(ctx, p, *record, logger)
		p.Close()
		client.Close()
		os.Exit(code)
	}

	if !cfg.HTTP.Enabled {
		logger.Error("HTTP API is disabled and no -record duration was given, nothing to do")
		os.Exit(1)
	}

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:    cfg.HTTP.Port,
		Address: cfg.HTTP.Address,
	}, logger, cfg, p, client, registry, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	<-ctx.Done()
	logger.Info("Received shutdown signal")
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Release the microphone if a recording is still live
	p.Close()

	if err := client.Close(); err != nil {
		logger.Warn("Error closing transcription client", slog.String("error", err.Error()))
	}

	stats := client.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("successful_requests", stats.SuccessRequests),
		slog.Float64("success_rate", stats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// recordOnce records for d (or until interrupted), transcribes and prints
// the transcript to stdout
func recordOnce(ctx context.Context, p *pipeline.Pipeline, d time.Duration, logger *slog.Logger) int {
	if err := p.StartCapture(ctx); err != nil {
		logger.Error("Failed to start capture", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("Recording", slog.Duration("duration", d))

	select {
	case <-time.After(d):
	case <-ctx.Done():
		logger.Info("Interrupted, transcribing what was captured")
	}

	// The signal context may already be done; give the submission its own
	text, err := p.StopAndTranscribe(context.Background())
	if err != nil {
		logger.Error("Transcription failed", slog.String("error", err.Error()))
		return 1
	}

	fmt.Println(text)
	return 0
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
