package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsStopped  prometheus.Counter
	SessionsFailed   prometheus.Counter
	DeviceReleases   prometheus.Counter
	RecordingLength  prometheus.Histogram
	ActiveRecordings prometheus.Gauge

	// Chunk metrics
	ChunksReceived prometheus.Counter
	ChunksDropped  prometheus.Counter
	ChunkSize      prometheus.Histogram

	// Encoding metrics
	EncodeDuration prometheus.Histogram
	ContainerSize  prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Total number of recording sessions that acquired the capture device",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_stopped_total",
			Help: "Total number of recording sessions stopped normally",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_failed_total",
			Help: "Total number of recording sessions that ended in failure",
		}),
		DeviceReleases: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_device_releases_total",
			Help: "Total number of capture device releases",
		}),
		RecordingLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_recording_duration_seconds",
			Help:    "Wall-clock length of recording sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		ActiveRecordings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_recordings",
			Help: "Number of sessions currently holding the capture device",
		}),

		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_chunks_received_total",
			Help: "Total number of audio chunks appended to sessions",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_chunks_dropped_total",
			Help: "Total number of audio chunks delivered outside an active recording",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_chunk_size_bytes",
			Help:    "Size of delivered audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 10), // 256B to ~128KB
		}),

		EncodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_encode_duration_seconds",
			Help:    "Time spent decoding chunks and encoding the WAV container",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		ContainerSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_container_size_bytes",
			Help:    "Size of encoded WAV containers",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),

		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_requests_total",
			Help: "Total number of transcription submissions",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_successes_total",
			Help: "Total number of submissions that returned a transcript",
		}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_transcription_failures_total",
			Help: "Total number of failed submissions by error kind",
		}, []string{"kind"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Duration of transcription submissions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1.5 minutes
		}),
		TranscriptionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionStarted records a session that acquired the device
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveRecordings.Inc()
}

// RecordSessionStopped records a normal stop and the recording length
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsStopped.Inc()
	m.RecordingLength.Observe(durationSeconds)
}

// RecordSessionFailed increments the failed sessions counter
func (m *Metrics) RecordSessionFailed() {
	if m == nil {
		return
	}
	m.SessionsFailed.Inc()
}

// RecordDeviceRelease records a capture device release
func (m *Metrics) RecordDeviceRelease() {
	if m == nil {
		return
	}
	m.DeviceReleases.Inc()
	m.ActiveRecordings.Dec()
}

// RecordChunk records an appended chunk
func (m *Metrics) RecordChunk(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksReceived.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkDropped increments the dropped chunks counter
func (m *Metrics) RecordChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

// RecordEncode records a finished decode and encode step
func (m *Metrics) RecordEncode(durationSeconds float64, containerBytes int) {
	if m == nil {
		return
	}
	m.EncodeDuration.Observe(durationSeconds)
	m.ContainerSize.Observe(float64(containerBytes))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription of the given kind
func (m *Metrics) RecordTranscriptionFailure(kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
