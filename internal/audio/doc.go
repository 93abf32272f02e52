// Package audio handles chunk collection, decoding and waveform encoding.
// It accumulates ordered capture chunks, decodes them into floating-point
// sample buffers and encodes those buffers into canonical 16-bit PCM WAV
// containers for transcription.
package audio
