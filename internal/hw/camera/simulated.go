package camera

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/multishot/internal/debug"
)

// SimulatedConfig configures a software camera.
type SimulatedConfig struct {
	Capabilities Capabilities
	Latency      time.Duration // processing time per exposure
	Width        int           // reported pixel dimensions
	Height       int
}

// Fault makes the simulated device misbehave for one format.
type Fault struct {
	CaptureErr error         // deliver PhotoProcessed(nil, CaptureErr)
	NoData     bool          // deliver a photo without file data
	SessionErr error         // deliver SessionEnded(SessionErr) after the photo
	Delay      time.Duration // extra latency on top of the configured one
	Silent     bool          // never call back at all
}

// Simulated is a Device that fabricates photos in memory. Every
// exposure runs on its own goroutine, so callbacks for different
// requests interleave like on real hardware.
type Simulated struct {
	cfg SimulatedConfig

	mu       sync.Mutex
	readyErr error
	faults   map[Format]Fault

	started atomic.Int64
}

// NewSimulated creates a ready simulated camera.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.Width <= 0 {
		cfg.Width = 4032
	}
	if cfg.Height <= 0 {
		cfg.Height = 3024
	}
	return &Simulated{
		cfg:    cfg,
		faults: make(map[Format]Fault),
	}
}

// FullCapabilities returns capabilities that satisfy all five formats.
func FullCapabilities() Capabilities {
	return Capabilities{
		PixelFormats: []uint32{PixelFormatBGRA},
		RawPixelFormats: []RawPixelFormat{
			{Code: RawFormatBayer14, Kind: RawBayer},
			{Code: RawFormatProRAW64, Kind: RawProRAW},
		},
	}
}

// SetReady makes Ready return err (nil = ready).
func (s *Simulated) SetReady(err error) {
	s.mu.Lock()
	s.readyErr = err
	s.mu.Unlock()
}

// Inject installs a fault for every later capture of format f.
func (s *Simulated) Inject(f Format, fault Fault) {
	s.mu.Lock()
	s.faults[f] = fault
	s.mu.Unlock()
}

// Started returns how many captures have been requested.
func (s *Simulated) Started() int {
	return int(s.started.Load())
}

func (s *Simulated) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyErr
}

func (s *Simulated) Capabilities() Capabilities {
	return s.cfg.Capabilities
}

func (s *Simulated) BeginCapture(d Descriptor, cb Callback) {
	s.started.Add(1)
	s.mu.Lock()
	fault := s.faults[d.Format]
	s.mu.Unlock()

	debug.Verbose("Simulated camera: begin %s %+v", d.Format, d.Settings)
	if fault.Silent {
		return
	}
	go s.expose(d, cb, fault)
}

func (s *Simulated) expose(d Descriptor, cb Callback, fault Fault) {
	time.Sleep(s.cfg.Latency + fault.Delay)
	cb.ExposureCaptured()

	switch {
	case fault.CaptureErr != nil:
		cb.PhotoProcessed(nil, fault.CaptureErr)
	case fault.NoData:
		photo := s.photo(d)
		photo.Data = nil
		cb.PhotoProcessed(photo, nil)
	default:
		cb.PhotoProcessed(s.photo(d), nil)
	}
	cb.SessionEnded(fault.SessionErr)
}

// photo builds a synthetic payload: a format signature followed by the
// request settings and dimensions.
func (s *Simulated) photo(d Descriptor) *Photo {
	var buf bytes.Buffer
	buf.Write(signature(d.Format))
	_ = binary.Write(&buf, binary.BigEndian, struct {
		Width, Height          uint32
		PixelFormat, RawFormat uint32
		Quality                uint32
	}{
		uint32(s.cfg.Width), uint32(s.cfg.Height),
		d.Settings.PixelFormat, d.Settings.RawPixelFormat,
		uint32(d.Settings.Quality),
	})

	meta := map[string]any{
		"PixelWidth":  s.cfg.Width,
		"PixelHeight": s.cfg.Height,
		"{TIFF}": map[string]any{
			"Make":  "multishot",
			"Model": "simulated",
		},
	}
	photo := &Photo{Metadata: meta, IsRaw: d.Format.IsRAW()}
	if d.Format.IsRAW() {
		photo.Thumbnail = &Thumbnail{Codec: "jpeg", Width: s.cfg.Width / 16, Height: s.cfg.Height / 16}
	} else {
		meta["{Exif}"] = map[string]any{
			"PixelXDimension": s.cfg.Width,
			"PixelYDimension": s.cfg.Height,
		}
	}
	photo.Data = buf.Bytes()
	return photo
}

func signature(f Format) []byte {
	switch f {
	case JPEG:
		return []byte{0xFF, 0xD8, 0xFF, 0xE1}
	case HEVC:
		return []byte("\x00\x00\x00\x18ftypheic")
	default:
		// TIFF and DNG share the little-endian TIFF header.
		return []byte("II*\x00")
	}
}

// ErrSimulatedCapture is a ready-made device error for fault injection.
var ErrSimulatedCapture = errors.New("simulated capture failure")
