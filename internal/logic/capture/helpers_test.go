package capture

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/store"
)

// pending is one BeginCapture call held by scriptedDevice.
type pending struct {
	desc camera.Descriptor
	cb   camera.Callback
}

// scriptedDevice hands every capture request to the test, which then
// fires the callbacks in whatever order it needs.
type scriptedDevice struct {
	readyErr error
	caps     camera.Capabilities
	begun    chan pending
}

func newScriptedDevice() *scriptedDevice {
	return &scriptedDevice{
		caps:  camera.FullCapabilities(),
		begun: make(chan pending, 32),
	}
}

func (d *scriptedDevice) Ready() error { return d.readyErr }
func (d *scriptedDevice) Capabilities() camera.Capabilities { return d.caps }
func (d *scriptedDevice) BeginCapture(desc camera.Descriptor, cb camera.Callback) {
	d.begun <- pending{desc: desc, cb: cb}
}

// await collects n BeginCapture calls, keyed by format.
func (d *scriptedDevice) await(t *testing.T, n int) map[camera.Format]camera.Callback {
	t.Helper()
	out := make(map[camera.Format]camera.Callback, n)
	for i := 0; i < n; i++ {
		select {
		case p := <-d.begun:
			out[p.desc.Format] = p.cb
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for capture %d/%d", i+1, n)
		}
	}
	return out
}

// recordingSink counts every settlement it receives.
type recordingSink struct {
	mu        sync.Mutex
	resolves  int
	rejects   int
	artifacts []Artifact
	err       error

	once sync.Once
	done chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{})}
}

func (s *recordingSink) Resolve(a []Artifact) {
	s.mu.Lock()
	s.resolves++
	if s.resolves+s.rejects == 1 {
		s.artifacts = a
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *recordingSink) Reject(err error) {
	s.mu.Lock()
	s.rejects++
	if s.resolves+s.rejects == 1 {
		s.err = err
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *recordingSink) counts() (resolves, rejects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolves, s.rejects
}

func (s *recordingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sink")
	}
}

// fakeStore is an in-memory Persister with per-format failures.
type fakeStore struct {
	mu    sync.Mutex
	fail  map[camera.Format]error
	files []store.File
}

func (s *fakeStore) Persist(f camera.Format, data []byte) (store.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[f]; err != nil {
		return store.File{}, err
	}
	file := store.File{
		Path: fmt.Sprintf("/mem/%d.%s", len(s.files)+1, f.Extension()),
		Size: int64(len(data)),
	}
	s.files = append(s.files, file)
	return file, nil
}

func testPhoto(f camera.Format) *camera.Photo {
	return &camera.Photo{
		Data: []byte("data-" + f.String()),
		Metadata: map[string]any{
			"{Exif}": map[string]any{"PixelXDimension": 400, "PixelYDimension": 300},
		},
		IsRaw: f.IsRAW(),
	}
}

func descriptorsFor(formats ...camera.Format) []camera.Descriptor {
	plan := BuildPlan(camera.FullCapabilities(), formats, DefaultPlanOptions())
	return plan.Descriptors
}

func formatsOf(artifacts []Artifact) []camera.Format {
	out := make([]camera.Format, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Format
	}
	return out
}
