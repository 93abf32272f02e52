// Package metrics exposes Prometheus instrumentation for recording sessions,
// waveform encoding, transcription submissions and the HTTP control API.
package metrics
