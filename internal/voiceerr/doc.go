// Package voiceerr defines the typed error values returned across the capture
// and transcription pipeline. Every failure that reaches a caller of the
// pipeline carries one of the Kind values declared here.
package voiceerr
