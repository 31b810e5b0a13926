package camera

import "errors"

// Readiness errors reported by Device.Ready.
var (
	ErrNotReady      = errors.New("camera not ready")
	ErrPhotoDisabled = errors.New("photo output not enabled")
)

// Device is the high-level interface used by the capture coordinator.
// It represents an abstract camera, regardless of how it's controlled
// (software simulation, GPIO remote, vendor SDK, etc.).
type Device interface {
	// Ready returns nil when the device can accept captures.
	Ready() error

	// Capabilities reports the pixel layouts the device can deliver right now.
	Capabilities() Capabilities

	// BeginCapture starts one exposure. It may return before the
	// exposure is done; cb is invoked later, possibly from another
	// goroutine, with zero or more intermediate events and exactly one
	// PhotoProcessed.
	BeginCapture(d Descriptor, cb Callback)
}

// Callback receives the stages of a single exposure.
type Callback interface {
	// ExposureCaptured reports that the sensor readout is done while
	// the photo is still being processed.
	ExposureCaptured()

	// PhotoProcessed delivers the finished photo or the error that
	// prevented it.
	PhotoProcessed(photo *Photo, err error)

	// SessionEnded reports that the device closed the capture for this
	// request. A nil error is informational.
	SessionEnded(err error)
}

// Photo is the device-native result of one exposure.
type Photo struct {
	Data      []byte         // file data representation; nil when the device could not produce one
	Metadata  map[string]any // device metadata ({Exif}, {TIFF}, PixelWidth, ...)
	IsRaw     bool
	Thumbnail *Thumbnail // embedded thumbnail, if any
}

// Thumbnail describes a preview image embedded in the photo file.
type Thumbnail struct {
	Codec  string `json:"codec" cbor:"codec"`
	Width  int    `json:"width" cbor:"width"`
	Height int    `json:"height" cbor:"height"`
}
