package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skypro1111/voice-pipeline/internal/audio"
	"github.com/skypro1111/voice-pipeline/internal/capture"
	"github.com/skypro1111/voice-pipeline/internal/metrics"
	"github.com/skypro1111/voice-pipeline/internal/voiceerr"
)

var (
	// ErrAlreadyActive is returned by Start when the session has left Idle
	ErrAlreadyActive = errors.New("recording session already active")

	// ErrAborted is returned by Start when the session failed while the
	// device was still being acquired
	ErrAborted = errors.New("recording session aborted during acquisition")
)

// State is the lifecycle state of a recording session
type State int

const (
	Idle State = iota
	Acquiring
	Recording
	Stopping
	Stopped
	Failed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == Stopped || s == Failed
}

// Recording is the result of a stopped session
type Recording struct {
	ID       string
	Format   audio.Format
	Chunks   [][]byte
	Duration time.Duration
}

// Empty reports whether the recording holds no audio chunks
func (r Recording) Empty() bool {
	return len(r.Chunks) == 0
}

// Session records one utterance from a capture device. It owns the device
// handle exclusively and releases it exactly once.
type Session struct {
	id        string
	device    capture.Device
	collector *audio.Collector
	logger    *slog.Logger
	metrics   *metrics.Metrics

	state     State
	handle    capture.Handle
	format    audio.Format
	startedAt time.Time
	failure   error
	dropped   int

	mu sync.Mutex
}

// Stats represents session statistics for monitoring
type Stats struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	Chunks        int       `json:"chunks"`
	TotalBytes    int       `json:"total_bytes"`
	DroppedChunks int       `json:"dropped_chunks"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	Failure       string    `json:"failure,omitempty"`
}

// New creates an idle session for dev
func New(dev capture.Device, logger *slog.Logger, m *metrics.Metrics) *Session {
	id := uuid.New().String()
	return &Session{
		id:        id,
		device:    dev,
		collector: audio.NewCollector(id),
		logger:    logger.With(slog.String("session_id", id)),
		metrics:   m,
		state:     Idle,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to Failed, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Start acquires the capture device and begins recording. It is only legal
// from Idle; the device is acquired without holding the session lock so a
// permission prompt does not block chunk delivery or Fail.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyActive, state)
	}
	s.state = Acquiring
	s.mu.Unlock()

	s.logger.Debug("Acquiring capture device")

	h, err := s.device.Acquire(ctx, sessionSink{s})

	s.mu.Lock()
	if err != nil {
		if s.state == Acquiring {
			s.state = Failed
			s.failure = err
			s.collector.Reset()
		}
		s.mu.Unlock()

		s.metrics.RecordSessionFailed()
		s.logger.Warn("Failed to acquire capture device", slog.String("error", err.Error()))
		return &voiceerr.Error{Kind: voiceerr.DeviceAccessDenied, Message: err.Error(), Err: err}
	}

	if s.state != Acquiring {
		// Failed while the acquire was pending; the late handle is ours to free
		cause := s.failure
		s.mu.Unlock()

		s.logger.Info("Releasing capture device acquired after session failure")
		s.metrics.RecordSessionStarted()
		s.release(h)
		return fmt.Errorf("%w: %v", ErrAborted, cause)
	}

	s.state = Recording
	s.handle = h
	s.format = h.Format()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.metrics.RecordSessionStarted()
	s.logger.Info("Recording started",
		slog.String("encoding", string(s.format.Encoding)),
		slog.Int("sample_rate", s.format.SampleRate),
		slog.Int("channels", s.format.Channels))

	return nil
}

// Stop ends a recording. From Recording it flushes and releases the device
// and returns the collected chunks in delivery order. From any other state
// it returns an empty Recording and has no side effects.
func (s *Session) Stop() Recording {
	s.mu.Lock()
	if s.state != Recording {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("Stop ignored", slog.String("state", state.String()))
		return Recording{ID: s.id}
	}
	s.state = Stopping
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	// Flush may deliver trailing chunks; they are accepted while Stopping
	if err := h.Flush(); err != nil {
		s.logger.Warn("Failed to flush capture device", slog.String("error", err.Error()))
	}
	s.release(h)

	s.mu.Lock()
	s.state = Stopped
	duration := time.Since(s.startedAt)
	rec := Recording{
		ID:       s.id,
		Format:   s.format,
		Chunks:   s.collector.Drain(),
		Duration: duration,
	}
	s.mu.Unlock()

	s.metrics.RecordSessionStopped(duration.Seconds())
	s.logger.Info("Recording stopped",
		slog.Int("chunks", len(rec.Chunks)),
		slog.Duration("duration", duration))

	return rec
}

// Fail moves the session to Failed from Idle, Acquiring or Recording,
// releasing the device if it is held and discarding collected chunks.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	switch s.state {
	case Idle, Acquiring, Recording:
	default:
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = Failed
	s.failure = err
	h := s.handle
	s.handle = nil
	s.collector.Reset()
	s.mu.Unlock()

	s.metrics.RecordSessionFailed()
	attrs := []any{slog.String("from", prev.String())}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Warn("Recording session failed", attrs...)

	if h != nil {
		s.release(h)
	}
}

// GetStats returns current session statistics
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.collector.GetStats()
	stats := Stats{
		ID:            s.id,
		State:         s.state.String(),
		Chunks:        cs.Chunks,
		TotalBytes:    cs.TotalBytes,
		DroppedChunks: s.dropped,
		StartedAt:     s.startedAt,
	}
	if s.failure != nil {
		stats.Failure = s.failure.Error()
	}
	return stats
}

// deliver appends a chunk if the session is accepting audio
func (s *Session) deliver(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Acquiring, Recording, Stopping:
		if _, ok := s.collector.Append(chunk); ok {
			s.metrics.RecordChunk(len(chunk))
		}
	default:
		s.dropped++
		s.metrics.RecordChunkDropped()
	}
}

func (s *Session) release(h capture.Handle) {
	if err := h.Release(); err != nil {
		s.logger.Warn("Failed to release capture device", slog.String("error", err.Error()))
	}
	s.metrics.RecordDeviceRelease()
	s.logger.Debug("Capture device released")
}

// sessionSink adapts a Session to capture.Sink
type sessionSink struct {
	s *Session
}

func (k sessionSink) Deliver(chunk []byte) {
	k.s.deliver(chunk)
}

// Fail runs asynchronously: releasing the handle waits for the device's
// delivery goroutine, which may be the caller.
func (k sessionSink) Fail(err error) {
	go k.s.Fail(err)
}
