package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skypro1111/voice-pipeline/internal/metrics"
	"github.com/skypro1111/voice-pipeline/internal/voiceerr"
)

const (
	// DefaultFieldName is the multipart field carrying the recording
	DefaultFieldName = "audio"

	// DefaultFileName is the file name attached to the recording part
	DefaultFileName = "recording.wav"

	// NoSpeechMessage is reported when the service returns an empty transcript
	NoSpeechMessage = "No speech detected"

	maxBackoff = 30 * time.Second
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("transcription client closed")

// Client submits WAV recordings to a transcription endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration
	closed          bool

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Endpoint      string
	APIKey        string        // sent as a bearer token when set
	Timeout       time.Duration // bounds each HTTP attempt
	MaxRetries    int           // retries of network failures only
	MaxConcurrent int
	FieldName     string
	FileName      string
	BackoffBase   time.Duration // delay before the first retry, doubled per attempt
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// response is the body returned by the transcription endpoint
type response struct {
	Transcription *string `json:"transcription"`
	Error         *string `json:"error"`
}

// NewClient creates a new transcription HTTP client
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.FieldName == "" {
		config.FieldName = DefaultFieldName
	}

	if config.FileName == "" {
		config.FileName = DefaultFileName
	}

	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
		metrics:    m,
	}, nil
}

// Submit uploads a WAV container and returns the trimmed transcript. Every
// error it returns is a *voiceerr.Error.
func (c *Client) Submit(ctx context.Context, container []byte) (string, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return "", voiceerr.Wrap(voiceerr.NetworkFailure, ErrClosed)
	}

	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", voiceerr.Wrap(voiceerr.NetworkFailure, ctx.Err())
	}

	requestID := uuid.New().String()
	logger := c.logger.With(slog.String("request_id", requestID))

	startTime := time.Now()
	c.incrementTotalRequests()
	c.metrics.RecordTranscriptionRequest()

	var lastErr *voiceerr.Error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordTranscriptionRetry()

			backoffTime := c.backoff(attempt)
			logger.Debug("Retrying transcription request",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoffTime),
				slog.String("last_error", lastErr.Message))

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				lastErr = voiceerr.Wrap(voiceerr.NetworkFailure, ctx.Err())
				c.recordFailure(lastErr, startTime)
				return "", lastErr
			}
		}

		text, err := c.doRequest(ctx, requestID, container)
		if err == nil {
			elapsed := time.Since(startTime)
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(elapsed)
			c.metrics.RecordTranscriptionSuccess(elapsed.Seconds())

			logger.Debug("Transcription received",
				slog.Int("chars", len(text)),
				slog.Duration("elapsed", elapsed))
			return text, nil
		}

		lastErr = err
		if !err.Retryable() {
			break
		}
	}

	c.recordFailure(lastErr, startTime)
	logger.Warn("Transcription failed",
		slog.String("kind", lastErr.Kind.String()),
		slog.String("error", lastErr.Message))
	return "", lastErr
}

// doRequest performs a single HTTP request and classifies its outcome
func (c *Client) doRequest(ctx context.Context, requestID string, container []byte) (string, *voiceerr.Error) {
	body, contentType, err := c.createMultipartRequest(container)
	if err != nil {
		return "", voiceerr.Wrap(voiceerr.NetworkFailure, fmt.Errorf("failed to create multipart request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return "", voiceerr.Wrap(voiceerr.NetworkFailure, fmt.Errorf("failed to create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "voice-pipeline/1.0")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", voiceerr.Wrap(voiceerr.NetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", voiceerr.Newf(voiceerr.NetworkFailure, "HTTP error: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", voiceerr.Wrap(voiceerr.NetworkFailure, fmt.Errorf("failed to read response body: %w", err))
	}

	return parseResponse(respBody)
}

// parseResponse classifies a 2xx response body
func parseResponse(body []byte) (string, *voiceerr.Error) {
	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", voiceerr.Wrap(voiceerr.NetworkFailure, fmt.Errorf("failed to parse response JSON: %w", err))
	}

	if parsed.Error != nil {
		return "", voiceerr.New(voiceerr.ServiceError, *parsed.Error)
	}

	if parsed.Transcription == nil {
		return "", voiceerr.New(voiceerr.EmptyTranscript, NoSpeechMessage)
	}
	text := strings.TrimSpace(*parsed.Transcription)
	if text == "" {
		return "", voiceerr.New(voiceerr.EmptyTranscript, NoSpeechMessage)
	}

	return text, nil
}

// createMultipartRequest creates a multipart/form-data body with one file part
func (c *Client) createMultipartRequest(container []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile(c.config.FieldName, c.config.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(container); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.BackoffBase
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (c *Client) recordFailure(err *voiceerr.Error, startTime time.Time) {
	c.incrementFailedRequests()
	c.metrics.RecordTranscriptionFailure(err.Kind.String(), time.Since(startTime).Seconds())
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight submissions and rejects new ones
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Wait for all active requests to complete
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	c.httpClient.CloseIdleConnections()
	return nil
}
