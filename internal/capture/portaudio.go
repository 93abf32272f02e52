//go:build portaudio

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/voice-pipeline/internal/audio"
)

// framesPerBuffer is the PortAudio read size; chunks are batched from reads
const framesPerBuffer = 1024

// PortAudioDevice records from the default input device
type PortAudioDevice struct {
	sampleRate int
	channels   int
	interval   time.Duration
	logger     *slog.Logger
}

func newPortAudioDevice(cfg Config, logger *slog.Logger) (Device, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("portaudio sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("portaudio channel count must be positive, got %d", cfg.Channels)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioDevice{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		interval:   cfg.ChunkInterval,
		logger:     logger,
	}, nil
}

// Acquire initialises PortAudio and starts the default input stream
func (d *PortAudioDevice) Acquire(ctx context.Context, sink Sink) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrDeviceUnavailable, err)
	}

	in := make([]int16, framesPerBuffer*d.channels)
	stream, err := portaudio.OpenDefaultStream(d.channels, 0, float64(d.sampleRate), framesPerBuffer, in)
	if err != nil {
		portaudio.Terminate()
		return nil, classifyOpenError(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, classifyOpenError(err)
	}

	chunkBytes := int(time.Duration(d.sampleRate)*d.interval/time.Second) * d.channels * 2
	if chunkBytes < 2*d.channels {
		chunkBytes = 2 * d.channels
	}

	h := &portAudioHandle{
		stream:     stream,
		in:         in,
		sink:       sink,
		chunkBytes: chunkBytes,
		pump:       newPump(),
		logger:     d.logger,
		format: audio.Format{
			Encoding:   audio.EncodingPCMS16LE,
			SampleRate: d.sampleRate,
			Channels:   d.channels,
		},
	}

	go h.run()

	d.logger.Info("Microphone acquired",
		slog.Int("sample_rate", d.sampleRate),
		slog.Int("channels", d.channels),
		slog.Duration("chunk_interval", d.interval),
	)

	return h, nil
}

// classifyOpenError maps PortAudio open failures onto the capture sentinels
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

type portAudioHandle struct {
	stream     *portaudio.Stream
	in         []int16
	sink       Sink
	format     audio.Format
	chunkBytes int
	pump       *pump
	logger     *slog.Logger

	mu      sync.Mutex
	pending []byte // read but not yet delivered

	releaseOnce sync.Once
	releaseErr  error
}

func (h *portAudioHandle) Format() audio.Format {
	return h.format
}

func (h *portAudioHandle) run() {
	defer close(h.pump.done)

	for !h.pump.stopping() {
		if err := h.stream.Read(); err != nil {
			if err == portaudio.InputOverflowed {
				h.logger.Warn("Microphone input overflowed, samples dropped")
				continue
			}
			h.sink.Fail(fmt.Errorf("portaudio read: %w", err))
			return
		}

		h.mu.Lock()
		for _, s := range h.in {
			h.pending = binary.LittleEndian.AppendUint16(h.pending, uint16(s))
		}
		var chunk []byte
		if len(h.pending) >= h.chunkBytes {
			chunk, h.pending = h.pending, nil
		}
		h.mu.Unlock()

		if chunk != nil {
			h.sink.Deliver(chunk)
		}
	}
}

// Flush stops reading and delivers the partial chunk that was still batching
func (h *portAudioHandle) Flush() error {
	h.pump.halt()

	h.mu.Lock()
	chunk := h.pending
	h.pending = nil
	h.mu.Unlock()

	if len(chunk) > 0 {
		h.sink.Deliver(chunk)
	}
	return nil
}

func (h *portAudioHandle) Release() error {
	h.releaseOnce.Do(func() {
		h.pump.halt()

		if err := h.stream.Stop(); err != nil {
			h.releaseErr = fmt.Errorf("stop stream: %w", err)
		}
		if err := h.stream.Close(); err != nil && h.releaseErr == nil {
			h.releaseErr = fmt.Errorf("close stream: %w", err)
		}
		if err := portaudio.Terminate(); err != nil && h.releaseErr == nil {
			h.releaseErr = fmt.Errorf("terminate portaudio: %w", err)
		}

		h.logger.Info("Microphone released")
	})
	return h.releaseErr
}
