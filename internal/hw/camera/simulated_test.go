package camera

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingCallback records the stages delivered for one exposure.
type recordingCallback struct {
	mu       sync.Mutex
	stages   []string
	photo    *Photo
	photoErr error
	endErr   error
	done     chan struct{}
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{done: make(chan struct{})}
}

func (r *recordingCallback) ExposureCaptured() {
	r.mu.Lock()
	r.stages = append(r.stages, "captured")
	r.mu.Unlock()
}

func (r *recordingCallback) PhotoProcessed(photo *Photo, err error) {
	r.mu.Lock()
	r.stages = append(r.stages, "processed")
	r.photo, r.photoErr = photo, err
	r.mu.Unlock()
}

func (r *recordingCallback) SessionEnded(err error) {
	r.mu.Lock()
	r.stages = append(r.stages, "ended")
	r.endErr = err
	r.mu.Unlock()
	close(r.done)
}

func (r *recordingCallback) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for SessionEnded")
	}
}

func TestSimulated_StageOrder(t *testing.T) {
	cam := NewSimulated(SimulatedConfig{Capabilities: FullCapabilities(), Latency: time.Millisecond})
	cb := newRecordingCallback()
	cam.BeginCapture(Descriptor{Format: JPEG, Settings: Settings{Codec: "jpeg"}}, cb)
	cb.wait(t)

	want := []string{"captured", "processed", "ended"}
	if len(cb.stages) != len(want) {
		t.Fatalf("stages = %v, want %v", cb.stages, want)
	}
	for i := range want {
		if cb.stages[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, cb.stages[i], want[i])
		}
	}
	if cb.photoErr != nil || cb.endErr != nil {
		t.Errorf("unexpected errors: %v / %v", cb.photoErr, cb.endErr)
	}
	if cam.Started() != 1 {
		t.Errorf("Started() = %d, want 1", cam.Started())
	}
}

func TestSimulated_PhotoContent(t *testing.T) {
	cam := NewSimulated(SimulatedConfig{Width: 640, Height: 480})

	cb := newRecordingCallback()
	cam.BeginCapture(Descriptor{Format: JPEG}, cb)
	cb.wait(t)
	if !bytes.HasPrefix(cb.photo.Data, []byte{0xFF, 0xD8}) {
		t.Errorf("JPEG payload should start with SOI, got % x", cb.photo.Data[:4])
	}
	exif, ok := cb.photo.Metadata["{Exif}"].(map[string]any)
	if !ok {
		t.Fatal("processed photo should carry {Exif}")
	}
	if exif["PixelXDimension"] != 640 || exif["PixelYDimension"] != 480 {
		t.Errorf("exif dimensions = %v x %v", exif["PixelXDimension"], exif["PixelYDimension"])
	}
	if cb.photo.IsRaw {
		t.Error("JPEG should not be raw")
	}

	raw := newRecordingCallback()
	cam.BeginCapture(Descriptor{Format: BayerRAW}, raw)
	raw.wait(t)
	if !raw.photo.IsRaw {
		t.Error("Bayer RAW should be raw")
	}
	if raw.photo.Thumbnail == nil {
		t.Error("RAW photo should embed a thumbnail")
	}
	if _, ok := raw.photo.Metadata["{Exif}"]; ok {
		t.Error("RAW metadata should not carry {Exif} dimensions")
	}
}

func TestSimulated_Faults(t *testing.T) {
	cam := NewSimulated(SimulatedConfig{})
	sessionErr := errors.New("session closed")
	cam.Inject(HEVC, Fault{CaptureErr: ErrSimulatedCapture})
	cam.Inject(JPEG, Fault{NoData: true, SessionErr: sessionErr})

	hevc := newRecordingCallback()
	cam.BeginCapture(Descriptor{Format: HEVC}, hevc)
	hevc.wait(t)
	if !errors.Is(hevc.photoErr, ErrSimulatedCapture) || hevc.photo != nil {
		t.Errorf("HEVC = %v, %v; want nil photo with injected error", hevc.photo, hevc.photoErr)
	}

	jpeg := newRecordingCallback()
	cam.BeginCapture(Descriptor{Format: JPEG}, jpeg)
	jpeg.wait(t)
	if jpeg.photo == nil || jpeg.photo.Data != nil {
		t.Error("NoData fault should deliver a photo without data")
	}
	if !errors.Is(jpeg.endErr, sessionErr) {
		t.Errorf("SessionEnded err = %v, want %v", jpeg.endErr, sessionErr)
	}
}

func TestSimulated_SilentNeverCallsBack(t *testing.T) {
	cam := NewSimulated(SimulatedConfig{})
	cam.Inject(BayerRAW, Fault{Silent: true})
	cb := newRecordingCallback()
	cam.BeginCapture(Descriptor{Format: BayerRAW}, cb)

	select {
	case <-cb.done:
		t.Fatal("silent fault should never end the session")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSimulated_Ready(t *testing.T) {
	cam := NewSimulated(SimulatedConfig{})
	if err := cam.Ready(); err != nil {
		t.Fatalf("new camera should be ready, got %v", err)
	}
	cam.SetReady(ErrNotReady)
	if !errors.Is(cam.Ready(), ErrNotReady) {
		t.Errorf("Ready() = %v, want ErrNotReady", cam.Ready())
	}
}
