//go:build !portaudio

package capture

import (
	"fmt"
	"log/slog"
)

// newPortAudioDevice reports the driver as unavailable in builds without cgo
// PortAudio bindings. Build with -tags portaudio to record from a microphone.
func newPortAudioDevice(cfg Config, logger *slog.Logger) (Device, error) {
	return nil, fmt.Errorf("%w: built without portaudio support (rebuild with -tags portaudio)", ErrDeviceUnavailable)
}
