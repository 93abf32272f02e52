package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voice-pipeline/internal/config"
	"github.com/skypro1111/voice-pipeline/internal/metrics"
	"github.com/skypro1111/voice-pipeline/internal/pipeline"
	"github.com/skypro1111/voice-pipeline/internal/session"
	"github.com/skypro1111/voice-pipeline/internal/transcription"
	"github.com/skypro1111/voice-pipeline/internal/voiceerr"
)

// Controller is the recording pipeline driven by the API
type Controller interface {
	StartCapture(ctx context.Context) error
	StopAndTranscribe(ctx context.Context) (string, error)
	Resubmit(ctx context.Context) (string, error)
	Cancel()
	Status() pipeline.Status
}

// StatsProvider reports transcription client statistics
type StatsProvider interface {
	GetStats() transcription.ClientStats
}

// HTTPServer provides the capture control API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	pipeline Controller
	stats    StatsProvider
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int
	Address string
}

// NewHTTPServer creates a new HTTP API server. A nil gatherer serves the
// default Prometheus registry on /metrics.
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	p Controller, stats StatsProvider, gatherer prometheus.Gatherer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		pipeline:  p,
		stats:     stats,
		gatherer:  gatherer,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// Stop waits for the transcription round trip
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Capture control
	mux.HandleFunc("/capture/start", h.withMetrics("/capture/start", h.handleStart))
	mux.HandleFunc("/capture/stop", h.withMetrics("/capture/stop", h.handleStop))
	mux.HandleFunc("/capture/resubmit", h.withMetrics("/capture/resubmit", h.handleResubmit))
	mux.HandleFunc("/capture/cancel", h.withMetrics("/capture/cancel", h.handleCancel))

	// Monitoring
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleStart implements POST /capture/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.pipeline.StartCapture(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	status := h.pipeline.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":      status.State,
		"session_id": status.SessionID,
	})
}

// handleStop implements POST /capture/stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text, err := h.pipeline.StopAndTranscribe(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

// handleResubmit implements POST /capture/resubmit
func (h *HTTPServer) handleResubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text, err := h.pipeline.Resubmit(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

// handleCancel implements POST /capture/cancel
func (h *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.pipeline.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"state": h.pipeline.Status().State})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.pipeline.Status()
	transcriptionStats := h.transcriptionStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "voice-pipeline",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{
				"state":          status.State,
				"transcriptions": status.Transcriptions,
				"failures":       status.Failures,
			},
			"transcription": map[string]interface{}{
				"total_requests":  transcriptionStats.TotalRequests,
				"success_rate":    transcriptionStats.SuccessRate,
				"active_requests": transcriptionStats.ActiveRequests,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.pipeline.Status())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"pipeline":      h.pipeline.Status(),
		"transcription": h.transcriptionStats(),
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.config == nil {
		http.Error(w, "Configuration unavailable", http.StatusNotFound)
		return
	}

	// API key is omitted
	sanitizedConfig := map[string]interface{}{
		"capture": map[string]interface{}{
			"driver":         h.config.Capture.Driver,
			"file_path":      h.config.Capture.FilePath,
			"sample_rate":    h.config.Capture.SampleRate,
			"channels":       h.config.Capture.Channels,
			"chunk_interval": h.config.Capture.ChunkInterval,
			"realtime":       h.config.Capture.Realtime,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"field_name":     h.config.Transcription.FieldName,
			"file_name":      h.config.Transcription.FileName,
		},
		"pipeline": map[string]interface{}{
			"submit_timeout": h.config.Pipeline.SubmitTimeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Voice Capture Pipeline",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                  "API documentation",
			"POST /capture/start":    "Start recording",
			"POST /capture/stop":     "Stop recording and transcribe",
			"POST /capture/resubmit": "Resubmit the last recording after a network failure",
			"POST /capture/cancel":   "Abort the current recording",
			"GET /health":            "Service health check",
			"GET /status":            "Current recording state",
			"GET /stats":             "Pipeline and transcription statistics",
			"GET /config":            "Service configuration",
			"GET /metrics":           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func (h *HTTPServer) transcriptionStats() transcription.ClientStats {
	if h.stats == nil {
		return transcription.ClientStats{}
	}
	return h.stats.GetStats()
}

// writeError maps pipeline errors onto HTTP status codes
func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	kind := voiceerr.KindOf(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		status = http.StatusConflict
	case kind == voiceerr.DeviceAccessDenied:
		status = http.StatusForbidden
	case kind == voiceerr.EmptyRecording, kind == voiceerr.EmptyTranscript:
		status = http.StatusUnprocessableEntity
	case kind == voiceerr.NetworkFailure, kind == voiceerr.ServiceError:
		status = http.StatusBadGateway
	}

	message := err.Error()
	var verr *voiceerr.Error
	if errors.As(err, &verr) && verr.Message != "" {
		message = verr.Message
	}

	if status >= 500 {
		h.logger.Warn("Capture request failed",
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
	}

	writeJSON(w, status, map[string]string{
		"error": message,
		"kind":  kind.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
