package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voice-pipeline/internal/audio"
)

var (
	// ErrPermissionDenied is returned when the user or OS refuses microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable is returned when no usable input device could be opened
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Sink receives what an acquired device produces. Deliver is called from a
// single goroutine per handle, in capture order. Fail reports a runtime
// error after which the device stops delivering; it must not block.
type Sink interface {
	Deliver(chunk []byte)
	Fail(err error)
}

// Handle is an acquired capture device
type Handle interface {
	// Format describes the chunks delivered by this handle
	Format() audio.Format

	// Flush stops capture and synchronously delivers any buffered chunk data.
	// No chunk is delivered after Flush returns.
	Flush() error

	// Release stops all hardware tracks and frees the device. Only the first
	// call has an effect.
	Release() error
}

// Device opens capture handles
type Device interface {
	// Acquire opens the device and starts delivering chunks to sink. It may
	// block waiting for a permission grant; ctx bounds that wait.
	Acquire(ctx context.Context, sink Sink) (Handle, error)
}

// Config selects and parameterises a capture driver
type Config struct {
	Driver        string        // "file" or "portaudio"
	FilePath      string        // WAV source for the file driver
	SampleRate    int           // portaudio only
	Channels      int           // portaudio only
	ChunkInterval time.Duration // cadence of chunk delivery
	Realtime      bool          // file driver paces chunks at ChunkInterval
}

// Open creates the device selected by cfg.Driver
func Open(cfg Config, logger *slog.Logger) (Device, error) {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 100 * time.Millisecond
	}

	switch cfg.Driver {
	case "file":
		return NewFileDevice(cfg.FilePath, cfg.ChunkInterval, cfg.Realtime, logger), nil
	case "portaudio":
		return newPortAudioDevice(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown capture driver %q", cfg.Driver)
	}
}

// pump coordinates a handle's delivery goroutine with Flush and Release
type pump struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPump() *pump {
	return &pump{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// halt signals the delivery goroutine to exit and waits for it
func (p *pump) halt() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *pump) stopping() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}
