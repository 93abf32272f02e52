// Package capture defines the microphone device contract used by recording
// sessions and provides its drivers. A Device is acquired once per session;
// the returned Handle delivers chunks to a Sink until it is released.
//
// Two drivers ship with the package: "file" streams a WAV file as if it were
// a live microphone, and "portaudio" records from the default input device
// when the binary is built with the portaudio build tag.
package capture
