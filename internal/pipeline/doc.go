// Package pipeline orchestrates capture, encoding and transcription.
//
// A Pipeline owns at most one live recording session. StopAndTranscribe
// stops it, decodes the collected chunks, encodes a mono 16-bit WAV
// container and submits it through a Transcriber. All failures surface as
// *voiceerr.Error values and no panic escapes the pipeline.
package pipeline
