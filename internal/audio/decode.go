package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

// DecodeChunks concatenates chunks in order and decodes them into a mono
// floating-point buffer. Multi-channel audio keeps channel 0 only.
func DecodeChunks(format Format, chunks [][]byte) (DecodedBuffer, error) {
	if err := format.Validate(); err != nil {
		return DecodedBuffer{}, err
	}

	data := bytes.Join(chunks, nil)

	switch format.Encoding {
	case EncodingPCMS16LE:
		return decodePCMS16LE(data, format)
	case EncodingPCMF32LE:
		return decodePCMF32LE(data, format)
	default:
		return decodeWAVStream(data)
	}
}

func decodePCMS16LE(data []byte, format Format) (DecodedBuffer, error) {
	frameSize := format.BytesPerFrame()
	if len(data)%frameSize != 0 {
		return DecodedBuffer{}, fmt.Errorf("pcm_s16le data length %d is not a multiple of frame size %d", len(data), frameSize)
	}

	frames := len(data) / frameSize
	samples := make([]float64, frames)
	for i := range samples {
		off := i * frameSize
		v := int16(binary.LittleEndian.Uint16(data[off : off+2]))
		samples[i] = float64(v) / 32768
	}

	return DecodedBuffer{SampleRate: format.SampleRate, Channels: 1, Samples: samples}, nil
}

func decodePCMF32LE(data []byte, format Format) (DecodedBuffer, error) {
	frameSize := format.BytesPerFrame()
	if len(data)%frameSize != 0 {
		return DecodedBuffer{}, fmt.Errorf("pcm_f32le data length %d is not a multiple of frame size %d", len(data), frameSize)
	}

	frames := len(data) / frameSize
	samples := make([]float64, frames)
	for i := range samples {
		off := i * frameSize
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4])))
	}

	return DecodedBuffer{SampleRate: format.SampleRate, Channels: 1, Samples: samples}, nil
}

func decodeWAVStream(data []byte) (DecodedBuffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return DecodedBuffer{}, fmt.Errorf("chunk stream is not a valid WAV file")
	}

	if d.WavAudioFormat != 1 {
		return DecodedBuffer{}, fmt.Errorf("unsupported WAV audio format %d (only PCM is supported)", d.WavAudioFormat)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return DecodedBuffer{}, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	channels := pcm.Format.NumChannels
	if channels <= 0 || pcm.Format.SampleRate <= 0 {
		return DecodedBuffer{}, fmt.Errorf("invalid WAV format: %d channels at %d Hz", channels, pcm.Format.SampleRate)
	}

	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}

	var offset, scale float64
	switch depth {
	case 8:
		offset, scale = 128, 128 // 8-bit WAV is unsigned
	case 16, 24, 32:
		scale = float64(int64(1) << (depth - 1))
	default:
		return DecodedBuffer{}, fmt.Errorf("unsupported WAV bit depth %d", depth)
	}

	frames := len(pcm.Data) / channels
	samples := make([]float64, frames)
	for i := range samples {
		samples[i] = (float64(pcm.Data[i*channels]) - offset) / scale
	}

	return DecodedBuffer{SampleRate: pcm.Format.SampleRate, Channels: 1, Samples: samples}, nil
}
