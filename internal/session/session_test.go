package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skypro1111/voice-pipeline/internal/audio"
	"github.com/skypro1111/voice-pipeline/internal/capture"
	"github.com/skypro1111/voice-pipeline/internal/metrics"
	"github.com/skypro1111/voice-pipeline/internal/voiceerr"
)

// fakeDevice hands out fakeHandles and counts acquisitions
type fakeDevice struct {
	acquires atomic.Int32
	err      error
	gate     chan struct{} // when set, Acquire blocks until closed
	handle   *fakeHandle
	sink     capture.Sink
	mu       sync.Mutex
}

func (d *fakeDevice) Acquire(ctx context.Context, sink capture.Sink) (capture.Handle, error) {
	d.acquires.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
	d.handle = &fakeHandle{sink: sink}
	return d.handle, nil
}

func (d *fakeDevice) currentSink() capture.Sink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink
}

type fakeHandle struct {
	sink     capture.Sink
	trailing []byte // delivered on Flush
	flushErr error
	flushes  atomic.Int32
	releases atomic.Int32
}

func (h *fakeHandle) Format() audio.Format {
	return audio.Format{Encoding: audio.EncodingPCMS16LE, SampleRate: 16000, Channels: 1}
}

func (h *fakeHandle) Flush() error {
	h.flushes.Add(1)
	if h.trailing != nil {
		h.sink.Deliver(h.trailing)
	}
	return h.flushErr
}

func (h *fakeHandle) Release() error {
	h.releases.Add(1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSession(dev capture.Device) *Session {
	return New(dev, testLogger(), metrics.NewMetrics(prometheus.NewRegistry()))
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, have %s", want, s.State())
}

func TestStopOnIdleIsNoop(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	rec := s.Stop()

	if !rec.Empty() {
		t.Errorf("Expected empty recording, got %d chunks", len(rec.Chunks))
	}
	if s.State() != Idle {
		t.Errorf("Expected state idle, got %s", s.State())
	}
	if dev.acquires.Load() != 0 {
		t.Errorf("Expected no acquisitions, got %d", dev.acquires.Load())
	}
}

func TestDoubleStartAcquiresOnce(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := s.Start(context.Background())
	if !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("Expected ErrAlreadyActive, got %v", err)
	}
	if dev.acquires.Load() != 1 {
		t.Errorf("Expected 1 acquisition, got %d", dev.acquires.Load())
	}
	if s.State() != Recording {
		t.Errorf("Expected state recording, got %s", s.State())
	}
}

func TestStopReturnsChunksInOrder(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.handle.trailing = []byte{9, 9}

	sink := dev.currentSink()
	sink.Deliver([]byte{1, 1})
	sink.Deliver([]byte{2, 2})
	sink.Deliver(nil) // ignored
	sink.Deliver([]byte{3, 3})

	rec := s.Stop()

	want := [][]byte{{1, 1}, {2, 2}, {3, 3}, {9, 9}}
	if len(rec.Chunks) != len(want) {
		t.Fatalf("Expected %d chunks, got %d", len(want), len(rec.Chunks))
	}
	for i := range want {
		if string(rec.Chunks[i]) != string(want[i]) {
			t.Errorf("Chunk %d: expected %v, got %v", i, want[i], rec.Chunks[i])
		}
	}
	if rec.ID != s.ID() {
		t.Errorf("Expected recording ID %s, got %s", s.ID(), rec.ID)
	}
	if rec.Format.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rec.Format.SampleRate)
	}
	if s.State() != Stopped {
		t.Errorf("Expected state stopped, got %s", s.State())
	}
	if dev.handle.releases.Load() != 1 {
		t.Errorf("Expected 1 release, got %d", dev.handle.releases.Load())
	}
}

func TestStopReleasesWhenFlushFails(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.handle.flushErr = errors.New("flush broke")
	dev.currentSink().Deliver([]byte{1, 2})

	rec := s.Stop()

	if len(rec.Chunks) != 1 {
		t.Errorf("Expected 1 chunk, got %d", len(rec.Chunks))
	}
	if dev.handle.releases.Load() != 1 {
		t.Errorf("Expected 1 release, got %d", dev.handle.releases.Load())
	}
}

func TestSecondStopIsNoop(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.currentSink().Deliver([]byte{1, 2})
	s.Stop()

	rec := s.Stop()
	if !rec.Empty() {
		t.Error("Expected second Stop to return an empty recording")
	}
	if dev.handle.releases.Load() != 1 {
		t.Errorf("Expected 1 release, got %d", dev.handle.releases.Load())
	}
	if dev.handle.flushes.Load() != 1 {
		t.Errorf("Expected 1 flush, got %d", dev.handle.flushes.Load())
	}
}

func TestChunksAfterStopAreDropped(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sink := dev.currentSink()
	s.Stop()

	sink.Deliver([]byte{7, 7})

	stats := s.GetStats()
	if stats.Chunks != 0 {
		t.Errorf("Expected no chunks after stop, got %d", stats.Chunks)
	}
	if stats.DroppedChunks != 1 {
		t.Errorf("Expected 1 dropped chunk, got %d", stats.DroppedChunks)
	}
}

func TestFailMidRecordingReleasesOnce(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.currentSink().Deliver([]byte{1, 2})

	s.Fail(errors.New("device unplugged"))
	s.Fail(errors.New("again"))

	if s.State() != Failed {
		t.Errorf("Expected state failed, got %s", s.State())
	}
	if dev.handle.releases.Load() != 1 {
		t.Errorf("Expected 1 release, got %d", dev.handle.releases.Load())
	}
	if s.GetStats().Chunks != 0 {
		t.Error("Expected chunks to be discarded on failure")
	}
	if rec := s.Stop(); !rec.Empty() {
		t.Error("Expected Stop after failure to return an empty recording")
	}
	if dev.handle.releases.Load() != 1 {
		t.Errorf("Expected release count to stay 1, got %d", dev.handle.releases.Load())
	}
}

func TestSinkFailMovesToFailed(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.currentSink().Fail(errors.New("read error"))

	waitForState(t, s, Failed)
	if s.Err() == nil || s.Err().Error() != "read error" {
		t.Errorf("Expected recorded failure, got %v", s.Err())
	}
	if dev.handle.releases.Load() != 1 {
		t.Errorf("Expected 1 release, got %d", dev.handle.releases.Load())
	}
}

func TestDeniedAcquisition(t *testing.T) {
	dev := &fakeDevice{err: capture.ErrPermissionDenied}
	s := newTestSession(dev)

	err := s.Start(context.Background())
	if voiceerr.KindOf(err) != voiceerr.DeviceAccessDenied {
		t.Errorf("Expected DeviceAccessDenied, got %v", err)
	}
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
	if s.State() != Failed {
		t.Errorf("Expected state failed, got %s", s.State())
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("Expected failed session to reject Start, got %v", err)
	}
}

func TestStopDuringPendingAcquireIsRejected(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{})}
	s := newTestSession(dev)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	waitForState(t, s, Acquiring)

	if rec := s.Stop(); !rec.Empty() {
		t.Error("Expected Stop during acquisition to return an empty recording")
	}
	if s.State() != Acquiring {
		t.Errorf("Expected state acquiring, got %s", s.State())
	}

	close(dev.gate)
	if err := <-errCh; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != Recording {
		t.Errorf("Expected state recording, got %s", s.State())
	}
}

func TestFailDuringPendingAcquireReleasesLateHandle(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{})}
	s := newTestSession(dev)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	waitForState(t, s, Acquiring)
	s.Fail(errors.New("cancelled"))
	close(dev.gate)

	err := <-errCh
	if !errors.Is(err, ErrAborted) {
		t.Errorf("Expected ErrAborted, got %v", err)
	}
	if s.State() != Failed {
		t.Errorf("Expected state failed, got %s", s.State())
	}
	if dev.handle.releases.Load() != 1 {
		t.Errorf("Expected late handle released once, got %d", dev.handle.releases.Load())
	}
}

func TestChunksDuringAcquisitionAreKept(t *testing.T) {
	dev := &earlyDevice{}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	rec := s.Stop()

	if len(rec.Chunks) != 1 || string(rec.Chunks[0]) != "\x05\x05" {
		t.Errorf("Expected chunk delivered during acquisition, got %v", rec.Chunks)
	}
}

// earlyDevice delivers a chunk before Acquire returns
type earlyDevice struct{}

func (earlyDevice) Acquire(ctx context.Context, sink capture.Sink) (capture.Handle, error) {
	sink.Deliver([]byte{5, 5})
	return &fakeHandle{sink: sink}, nil
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Acquiring, "acquiring"},
		{Recording, "recording"},
		{Stopping, "stopping"},
		{Stopped, "stopped"},
		{Failed, "failed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}

	if !Stopped.Terminal() || !Failed.Terminal() || Recording.Terminal() {
		t.Error("Unexpected Terminal() result")
	}
}
