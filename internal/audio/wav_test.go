package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-audio/wav"
)

func sineBuffer(sampleRate int, seconds, frequency float64) DecodedBuffer {
	numSamples := int(float64(sampleRate) * seconds)
	samples := make([]float64, numSamples)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = 0.5 * math.Sin(2*math.Pi*frequency*t)
	}
	return DecodedBuffer{SampleRate: sampleRate, Channels: 1, Samples: samples}
}

func TestEncodeWAV(t *testing.T) {
	buf := sineBuffer(16000, 0.1, 440)

	wavData, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := WAVHeaderSize + len(buf.Samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}
	if math.Abs(info.Duration-0.1) > 0.001 {
		t.Errorf("Expected duration 0.100, got %.3f", info.Duration)
	}
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	wavData, err := EncodeWAV(DecodedBuffer{SampleRate: 44100, Channels: 1, Samples: []float64{0, 0, 0, 0}})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"chunk size", le.Uint32(wavData[4:8]), 36 + 8},
		{"fmt size", le.Uint32(wavData[16:20]), 16},
		{"audio format", uint32(le.Uint16(wavData[20:22])), 1},
		{"channels", uint32(le.Uint16(wavData[22:24])), 1},
		{"sample rate", le.Uint32(wavData[24:28]), 44100},
		{"byte rate", le.Uint32(wavData[28:32]), 44100 * 2},
		{"block align", uint32(le.Uint16(wavData[32:34])), 2},
		{"bits per sample", uint32(le.Uint16(wavData[34:36])), 16},
		{"data size", le.Uint32(wavData[40:44]), 8},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %d, got %d", c.name, c.want, c.got)
		}
	}

	for _, tag := range []struct {
		off int
		val string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if got := string(wavData[tag.off : tag.off+4]); got != tag.val {
			t.Errorf("Expected tag %q at offset %d, got %q", tag.val, tag.off, got)
		}
	}
}

func TestEncodeWAVQuantizationExtremes(t *testing.T) {
	wavData, err := EncodeWAV(DecodedBuffer{SampleRate: 44100, Channels: 1, Samples: []float64{1.0, -1.0, 0.0}})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	payload := wavData[WAVHeaderSize:]
	want := []uint16{0x7FFF, 0x8000, 0x0000}
	if len(payload) != len(want)*2 {
		t.Fatalf("Expected payload of %d bytes, got %d", len(want)*2, len(payload))
	}

	for i, w := range want {
		if got := binary.LittleEndian.Uint16(payload[i*2:]); got != w {
			t.Errorf("Sample %d: expected 0x%04X, got 0x%04X", i, w, got)
		}
	}
}

func TestQuantizeSample(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{1.0, 32767},
		{-1.0, -32768},
		{0, 0},
		{2.5, 32767},   // clamped
		{-7, -32768},   // clamped
		{0.5, 16383},   // 16383.5 truncated
		{-0.5, -16384}, // exact
		{-0.00001, 0},  // truncates toward zero
		{math.NaN(), 0},
		{math.Inf(1), 32767},
		{math.Inf(-1), -32768},
	}

	for _, tt := range tests {
		if got := QuantizeSample(tt.in); got != tt.want {
			t.Errorf("QuantizeSample(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeWAVDeterministic(t *testing.T) {
	buffers := []DecodedBuffer{
		sineBuffer(8000, 0.25, 300),
		sineBuffer(44100, 0.05, 1000),
		{SampleRate: 22050, Channels: 1, Samples: []float64{-1.5, 0.25, math.NaN(), 1}},
		{SampleRate: 48000, Channels: 1},
	}

	for i, buf := range buffers {
		first, err := EncodeWAV(buf)
		if err != nil {
			t.Fatalf("buffer %d: EncodeWAV failed: %v", i, err)
		}
		second, err := EncodeWAV(buf)
		if err != nil {
			t.Fatalf("buffer %d: second EncodeWAV failed: %v", i, err)
		}
		if !bytes.Equal(first, second) {
			t.Errorf("buffer %d: encoding is not deterministic", i)
		}
		if len(first) != WAVHeaderSize+buf.Frames()*2 {
			t.Errorf("buffer %d: expected length %d, got %d", i, WAVHeaderSize+buf.Frames()*2, len(first))
		}
	}
}

func TestEncodeWAVEmptyBuffer(t *testing.T) {
	wavData, err := EncodeWAV(DecodedBuffer{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(wavData) != WAVHeaderSize {
		t.Errorf("Expected header-only container, got %d bytes", len(wavData))
	}
}

func TestEncodeWAVStereoKeepsFirstChannel(t *testing.T) {
	buf := DecodedBuffer{
		SampleRate: 8000,
		Channels:   2,
		Samples:    []float64{1.0, -1.0, 0.0, 1.0, -1.0, 0.0},
	}

	wavData, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	samples, rate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", rate)
	}

	want := []int16{32767, 0, -32768}
	if len(samples) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}
}

func TestEncodeWAVInvalidFormat(t *testing.T) {
	samples := []float64{0.1, 0.2, 0.3}

	if _, err := EncodeWAV(DecodedBuffer{SampleRate: 0, Channels: 1, Samples: samples}); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if _, err := EncodeWAV(DecodedBuffer{SampleRate: -1000, Channels: 1, Samples: samples}); err == nil {
		t.Error("Expected error for negative sample rate")
	}
	if _, err := EncodeWAV(DecodedBuffer{SampleRate: 8000, Channels: 0, Samples: samples}); err == nil {
		t.Error("Expected error for zero channels")
	}
}

func TestEncodeWAVReadableByGoAudio(t *testing.T) {
	buf := DecodedBuffer{SampleRate: 16000, Channels: 1, Samples: []float64{0.25, -0.25, 1, -1}}

	wavData, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	d := wav.NewDecoder(bytes.NewReader(wavData))
	if !d.IsValidFile() {
		t.Fatal("go-audio rejected the container")
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer failed: %v", err)
	}

	if pcm.Format.SampleRate != 16000 || pcm.Format.NumChannels != 1 {
		t.Errorf("Unexpected format %+v", pcm.Format)
	}

	want := []int{8191, -8192, 32767, -32768}
	if len(pcm.Data) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(pcm.Data))
	}
	for i := range want {
		if pcm.Data[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], pcm.Data[i])
		}
	}
}

func TestDecodeWAV(t *testing.T) {
	original := []float64{0.1, -0.2, 0.3, -0.4, 0.5}

	wavData, err := EncodeWAV(DecodedBuffer{SampleRate: 8000, Channels: 1, Samples: original})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, rate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", rate)
	}

	for i, s := range original {
		if decoded[i] != QuantizeSample(s) {
			t.Errorf("Sample %d: expected %d, got %d", i, QuantizeSample(s), decoded[i])
		}
	}
}

func TestDecodeWAVTruncated(t *testing.T) {
	wavData, err := EncodeWAV(DecodedBuffer{SampleRate: 8000, Channels: 1, Samples: []float64{0.1, 0.2, 0.3}})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if _, _, err := DecodeWAV(wavData[:len(wavData)-2]); err == nil {
		t.Error("Expected error for truncated payload")
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}

func TestGetWAVDuration(t *testing.T) {
	buf := DecodedBuffer{SampleRate: 8000, Channels: 1, Samples: make([]float64, 8000)}

	wavData, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", duration)
	}
}
