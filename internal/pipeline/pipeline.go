package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voice-pipeline/internal/audio"
	"github.com/skypro1111/voice-pipeline/internal/capture"
	"github.com/skypro1111/voice-pipeline/internal/metrics"
	"github.com/skypro1111/voice-pipeline/internal/session"
	"github.com/skypro1111/voice-pipeline/internal/voiceerr"
)

// ErrCancelled is recorded as the failure of a session ended by Cancel
var ErrCancelled = errors.New("capture cancelled")

// Transcriber turns a WAV container into text
type Transcriber interface {
	Submit(ctx context.Context, container []byte) (string, error)
}

// Config contains pipeline configuration
type Config struct {
	// SubmitTimeout bounds a single submission; zero leaves it to the transcriber
	SubmitTimeout time.Duration
}

// Pipeline drives one recording session at a time from capture to transcript
type Pipeline struct {
	device      capture.Device
	transcriber Transcriber
	config      Config
	logger      *slog.Logger
	metrics     *metrics.Metrics

	session *session.Session

	// Container kept for Resubmit after a network failure
	pending   []byte
	pendingID string

	// Statistics
	transcriptions uint64
	failures       uint64
	lastError      string
	lastTranscript time.Time

	mu sync.RWMutex
}

// Status represents the pipeline state for monitoring
type Status struct {
	State          string    `json:"state"`
	SessionID      string    `json:"session_id,omitempty"`
	Chunks         int       `json:"chunks"`
	TotalBytes     int       `json:"total_bytes"`
	DroppedChunks  int       `json:"dropped_chunks"`
	CanResubmit    bool      `json:"can_resubmit"`
	Transcriptions uint64    `json:"transcriptions"`
	Failures       uint64    `json:"failures"`
	LastError      string    `json:"last_error,omitempty"`
	LastTranscript time.Time `json:"last_transcript,omitempty"`
}

// New creates a pipeline recording from dev and transcribing with t
func New(dev capture.Device, t Transcriber, config Config, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		device:      dev,
		transcriber: t,
		config:      config,
		logger:      logger,
		metrics:     m,
	}
}

// StartCapture begins a new recording session. It fails with
// session.ErrAlreadyActive while a previous session is still live.
func (p *Pipeline) StartCapture(ctx context.Context) error {
	p.mu.Lock()
	if p.session != nil && !p.session.State().Terminal() {
		state := p.session.State()
		p.mu.Unlock()
		return fmt.Errorf("%w (state %s)", session.ErrAlreadyActive, state)
	}
	s := session.New(p.device, p.logger, p.metrics)
	p.session = s
	p.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		p.recordFailure(err)
		return err
	}

	p.logger.Info("Capture started", slog.String("session_id", s.ID()))
	return nil
}

// StopAndTranscribe stops the live recording, encodes it and submits it.
// Every error it returns is a *voiceerr.Error.
func (p *Pipeline) StopAndTranscribe(ctx context.Context) (string, error) {
	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()

	if s == nil {
		err := voiceerr.New(voiceerr.EmptyRecording, "no recording in progress")
		p.recordFailure(err)
		return "", err
	}

	rec := s.Stop()
	if rec.Empty() {
		err := voiceerr.New(voiceerr.EmptyRecording, "no audio captured")
		p.recordFailure(err)
		p.logger.Info("Nothing to transcribe",
			slog.String("session_id", rec.ID),
			slog.String("state", s.State().String()))
		return "", err
	}

	container, err := p.encode(rec)
	if err != nil {
		p.recordFailure(err)
		p.logger.Warn("Failed to encode recording",
			slog.String("session_id", rec.ID),
			slog.String("error", err.Error()))
		return "", err
	}

	return p.submit(ctx, rec.ID, container)
}

// Resubmit sends the container retained from the last network failure
// again, without recording anything new.
func (p *Pipeline) Resubmit(ctx context.Context) (string, error) {
	p.mu.Lock()
	container, id := p.pending, p.pendingID
	p.mu.Unlock()

	if container == nil {
		return "", voiceerr.New(voiceerr.EmptyRecording, "no recording awaiting resubmission")
	}

	p.logger.Info("Resubmitting recording", slog.String("session_id", id))
	return p.submit(ctx, id, container)
}

// Cancel fails the live session, releasing the capture device
func (p *Pipeline) Cancel() {
	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()

	if s == nil {
		return
	}
	s.Fail(ErrCancelled)
}

// Close cancels any live session
func (p *Pipeline) Close() {
	p.Cancel()

	status := p.Status()
	p.logger.Info("Pipeline closed",
		slog.Uint64("transcriptions", status.Transcriptions),
		slog.Uint64("failures", status.Failures))
}

// Status returns the current pipeline state
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{
		State:          session.Idle.String(),
		CanResubmit:    p.pending != nil,
		Transcriptions: p.transcriptions,
		Failures:       p.failures,
		LastError:      p.lastError,
		LastTranscript: p.lastTranscript,
	}

	if p.session != nil {
		stats := p.session.GetStats()
		status.State = stats.State
		status.SessionID = stats.ID
		status.Chunks = stats.Chunks
		status.TotalBytes = stats.TotalBytes
		status.DroppedChunks = stats.DroppedChunks
	}

	return status
}

// encode decodes the chunks and builds the WAV container. Any error or
// panic is reported as an encoding failure.
func (p *Pipeline) encode(rec session.Recording) (container []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			container = nil
			err = voiceerr.Newf(voiceerr.EncodingFailure, "panic while encoding: %v", r)
		}
	}()

	start := time.Now()

	buf, err := audio.DecodeChunks(rec.Format, rec.Chunks)
	if err != nil {
		return nil, voiceerr.Wrap(voiceerr.EncodingFailure, fmt.Errorf("failed to decode chunks: %w", err))
	}

	if len(buf.Samples) == 0 {
		return nil, voiceerr.New(voiceerr.EmptyRecording, "recording decoded to zero samples")
	}

	container, err = audio.EncodeWAV(buf)
	if err != nil {
		return nil, voiceerr.Wrap(voiceerr.EncodingFailure, fmt.Errorf("failed to encode WAV: %w", err))
	}

	elapsed := time.Since(start)
	p.metrics.RecordEncode(elapsed.Seconds(), len(container))
	p.logger.Debug("Recording encoded",
		slog.String("session_id", rec.ID),
		slog.Int("frames", buf.Frames()),
		slog.Duration("audio_duration", buf.Duration()),
		slog.Int("container_bytes", len(container)),
		slog.Duration("elapsed", elapsed))

	return container, nil
}

// submit sends a container and classifies the outcome. The container is
// retained for Resubmit only after a network failure.
func (p *Pipeline) submit(ctx context.Context, id string, container []byte) (string, error) {
	if p.config.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.SubmitTimeout)
		defer cancel()
	}

	startTime := time.Now()
	text, err := p.callTranscriber(ctx, container)
	duration := time.Since(startTime)

	if err != nil {
		if voiceerr.KindOf(err) == voiceerr.KindUnknown {
			err = voiceerr.Wrap(voiceerr.NetworkFailure, err)
		}

		p.mu.Lock()
		if voiceerr.KindOf(err) == voiceerr.NetworkFailure {
			p.pending, p.pendingID = container, id
		} else {
			p.pending, p.pendingID = nil, ""
		}
		p.mu.Unlock()

		p.recordFailure(err)
		p.logger.Error("Transcription failed",
			slog.String("session_id", id),
			slog.String("kind", voiceerr.KindOf(err).String()),
			slog.String("error", err.Error()),
			slog.Float64("duration", duration.Seconds()))
		return "", err
	}

	p.mu.Lock()
	p.pending, p.pendingID = nil, ""
	p.transcriptions++
	p.lastTranscript = time.Now()
	p.mu.Unlock()

	p.logger.Info("Transcription completed",
		slog.String("session_id", id),
		slog.Int("chars", len(text)),
		slog.Float64("duration", duration.Seconds()))

	return text, nil
}

func (p *Pipeline) callTranscriber(ctx context.Context, container []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = voiceerr.Newf(voiceerr.NetworkFailure, "transcriber panic: %v", r)
		}
	}()
	return p.transcriber.Submit(ctx, container)
}

func (p *Pipeline) recordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	p.lastError = err.Error()
}
