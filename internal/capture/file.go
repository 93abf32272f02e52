package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/skypro1111/voice-pipeline/internal/audio"
)

// FileDevice plays a WAV file into a session as if it were a microphone.
// Once the file is exhausted the handle stays open and silent until released.
type FileDevice struct {
	path     string
	interval time.Duration
	realtime bool
	logger   *slog.Logger
}

// NewFileDevice creates a file-backed capture device
func NewFileDevice(path string, interval time.Duration, realtime bool, logger *slog.Logger) *FileDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileDevice{
		path:     path,
		interval: interval,
		realtime: realtime,
		logger:   logger,
	}
}

// Acquire opens the WAV file and starts streaming it to sink
func (d *FileDevice) Acquire(ctx context.Context, sink Sink) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrDeviceUnavailable, d.path)
	}

	depth := int(dec.BitDepth)
	if dec.WavAudioFormat != 1 || (depth != 16 && depth != 24 && depth != 32) {
		f.Close()
		return nil, fmt.Errorf("%w: unsupported WAV encoding (format %d, %d-bit)",
			ErrDeviceUnavailable, dec.WavAudioFormat, depth)
	}

	format := audio.Format{
		Encoding:   audio.EncodingPCMS16LE,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}

	framesPerChunk := int(time.Duration(format.SampleRate) * d.interval / time.Second)
	if framesPerChunk < 1 {
		framesPerChunk = 1
	}

	h := &fileHandle{
		file:   f,
		dec:    dec,
		format: format,
		depth:  depth,
		sink:   sink,
		pump:   newPump(),
		logger: d.logger.With(slog.String("device", d.path)),
		buf: &goaudio.IntBuffer{
			Format:         dec.Format(),
			Data:           make([]int, framesPerChunk*format.Channels),
			SourceBitDepth: depth,
		},
	}

	go h.run(d.realtime, d.interval)

	d.logger.Debug("File capture device acquired",
		slog.String("path", d.path),
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("channels", format.Channels),
		slog.Int("frames_per_chunk", framesPerChunk),
	)

	return h, nil
}

type fileHandle struct {
	file   *os.File
	dec    *wav.Decoder
	format audio.Format
	depth  int
	sink   Sink
	buf    *goaudio.IntBuffer
	pump   *pump
	logger *slog.Logger

	releaseOnce sync.Once
	releaseErr  error
}

func (h *fileHandle) Format() audio.Format {
	return h.format
}

func (h *fileHandle) run(realtime bool, interval time.Duration) {
	defer close(h.pump.done)

	var tick <-chan time.Time
	if realtime {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-h.pump.stop:
				return
			case <-tick:
			}
		} else if h.pump.stopping() {
			return
		}

		n, err := h.dec.PCMBuffer(h.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			h.sink.Fail(fmt.Errorf("read %s: %w", h.file.Name(), err))
			return
		}

		if n == 0 {
			h.logger.Debug("File capture exhausted, waiting for release")
			<-h.pump.stop
			return
		}

		h.sink.Deliver(intsToS16LE(h.buf.Data[:n], h.depth))
	}
}

// Flush stops reading; every read chunk has already been delivered
func (h *fileHandle) Flush() error {
	h.pump.halt()
	return nil
}

func (h *fileHandle) Release() error {
	h.releaseOnce.Do(func() {
		h.pump.halt()
		h.releaseErr = h.file.Close()
	})
	return h.releaseErr
}

// intsToS16LE narrows go-audio integer samples of the given depth to
// little-endian int16 bytes
func intsToS16LE(samples []int, depth int) []byte {
	shift := uint(depth - 16)
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v>>shift)))
	}
	return out
}
