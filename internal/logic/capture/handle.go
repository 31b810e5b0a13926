package capture

import (
	"errors"
	"sync/atomic"

	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/store"
)

// Persister writes photo data to a flushed, uniquely named file.
type Persister interface {
	Persist(f camera.Format, data []byte) (store.File, error)
}

// reporter is the part of the Coordinator a Handle reports into.
type reporter interface {
	artifactReady(h *Handle, a Artifact)
	artifactFailed(h *Handle, err error)
	captureSessionEnded(h *Handle, err error)
}

var handleIDs atomic.Uint64

// Handle is the camera.Callback of one in-flight request. It turns
// device results into Artifacts or capture errors and reports the
// terminal outcome of its request to the coordinator exactly once,
// whatever the number of callback stages the device delivers.
type Handle struct {
	id         uint64
	format     camera.Format
	descriptor camera.Descriptor
	coord      reporter
	store      Persister

	reported atomic.Bool
}

func newHandle(coord reporter, st Persister, d camera.Descriptor) *Handle {
	return &Handle{
		id:         handleIDs.Add(1),
		format:     d.Format,
		descriptor: d,
		coord:      coord,
		store:      st,
	}
}

// ID is unique within the process and never reused.
func (h *Handle) ID() uint64 { return h.id }

func (h *Handle) Format() camera.Format { return h.format }

// claim takes the single terminal report.
func (h *Handle) claim() bool {
	return h.reported.CompareAndSwap(false, true)
}

func (h *Handle) ExposureCaptured() {
	debug.Verbose("Handle %d (%s): exposure captured, still processing", h.id, h.format)
}

func (h *Handle) PhotoProcessed(photo *camera.Photo, err error) {
	if !h.claim() {
		debug.Verbose("Handle %d (%s): photo callback after terminal report ignored", h.id, h.format)
		return
	}
	if err != nil {
		h.coord.artifactFailed(h, newError(ErrDeviceCapture, h.format, err))
		return
	}
	if photo == nil || len(photo.Data) == 0 {
		h.coord.artifactFailed(h, newError(ErrArtifactPersist, h.format, errors.New("no file data")))
		return
	}

	file, err := h.store.Persist(h.format, photo.Data)
	if err != nil {
		h.coord.artifactFailed(h, newError(ErrArtifactPersist, h.format, err))
		return
	}
	debug.Artifact(h.format.String(), file.Path)
	h.coord.artifactReady(h, newArtifact(h, photo, file))
}

// SessionEnded with an error is terminal unless the handle already
// reported; in that case it is downgraded to an informational event.
func (h *Handle) SessionEnded(err error) {
	if err != nil && !h.claim() {
		debug.Verbose("Handle %d (%s): session error after terminal report: %v", h.id, h.format, err)
		err = nil
	}
	if err != nil {
		err = newError(ErrDeviceCapture, h.format, err)
	}
	h.coord.captureSessionEnded(h, err)
}
