package audio

import (
	"fmt"
	"time"
)

// Encoding identifies how capture chunks are encoded
type Encoding string

const (
	EncodingPCMS16LE Encoding = "pcm_s16le" // interleaved little-endian int16
	EncodingPCMF32LE Encoding = "pcm_f32le" // interleaved little-endian float32
	EncodingWAV      Encoding = "wav"       // chunks concatenate to a RIFF/WAVE stream
)

// Format describes the audio delivered by a capture device
type Format struct {
	Encoding   Encoding `json:"encoding"`
	SampleRate int      `json:"sample_rate"`
	Channels   int      `json:"channels"`
}

// Validate checks that the format can be decoded
func (f Format) Validate() error {
	switch f.Encoding {
	case EncodingPCMS16LE, EncodingPCMF32LE:
		if f.SampleRate <= 0 {
			return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
		}
		if f.Channels <= 0 {
			return fmt.Errorf("channel count must be positive, got %d", f.Channels)
		}
	case EncodingWAV:
		// rate and channels come from the stream header
	default:
		return fmt.Errorf("unsupported chunk encoding %q", f.Encoding)
	}
	return nil
}

// BytesPerFrame returns the size of one interleaved frame for raw PCM encodings
func (f Format) BytesPerFrame() int {
	switch f.Encoding {
	case EncodingPCMS16LE:
		return 2 * f.Channels
	case EncodingPCMF32LE:
		return 4 * f.Channels
	default:
		return 0
	}
}

// DecodedBuffer is a finished recording as floating-point samples in [-1, 1].
// Samples are interleaved when Channels > 1.
type DecodedBuffer struct {
	SampleRate int
	Channels   int
	Samples    []float64
}

// Frames returns the number of sample frames in the buffer
func (b DecodedBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer
func (b DecodedBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}
