package capture

import (
	"fmt"

	"github.com/cjeanneret/multishot/internal/hw/camera"
)

// PlanOptions holds the settings shared by every processed-format request.
type PlanOptions struct {
	Quality        camera.Quality
	HighResolution bool
}

// DefaultPlanOptions matches the device's best-quality still settings.
func DefaultPlanOptions() PlanOptions {
	return PlanOptions{Quality: camera.QualityQuality, HighResolution: true}
}

// Skip records a format left out because the device cannot deliver it.
type Skip struct {
	Format camera.Format
	Err    error
}

// Plan is the set of descriptors to dispatch plus the skipped formats.
type Plan struct {
	Descriptors []camera.Descriptor
	Skipped     []Skip
}

// Formats returns the formats that will actually be dispatched.
func (p Plan) Formats() []camera.Format {
	out := make([]camera.Format, len(p.Descriptors))
	for i, d := range p.Descriptors {
		out[i] = d.Format
	}
	return out
}

// BuildPlan builds one descriptor per requested format. An empty
// selection means all five. Formats whose pixel layout the device
// lacks (uncompressed BGRA, Bayer RAW, Apple ProRAW) are skipped, so
// the plan's width is already the real fan-out width.
func BuildPlan(caps camera.Capabilities, formats []camera.Format, opts PlanOptions) Plan {
	if len(formats) == 0 {
		formats = camera.AllFormats()
	}

	var plan Plan
	seen := make(map[camera.Format]bool, len(formats))
	for _, f := range formats {
		if seen[f] {
			continue
		}
		seen[f] = true

		d, err := describe(caps, f, opts)
		if err != nil {
			plan.Skipped = append(plan.Skipped, Skip{Format: f, Err: err})
			continue
		}
		plan.Descriptors = append(plan.Descriptors, d)
	}
	return plan
}

func describe(caps camera.Capabilities, f camera.Format, opts PlanOptions) (camera.Descriptor, error) {
	processed := camera.Settings{HighResolution: opts.HighResolution, Quality: opts.Quality}

	switch f {
	case camera.JPEG:
		processed.Codec = "jpeg"
		return camera.Descriptor{Format: f, Settings: processed}, nil
	case camera.HEVC:
		processed.Codec = "hevc"
		return camera.Descriptor{Format: f, Settings: processed}, nil
	case camera.UncompressedBGRA:
		if !caps.SupportsPixelFormat(camera.PixelFormatBGRA) {
			return camera.Descriptor{}, newError(ErrFormatUnsupported, f, fmt.Errorf("pixel format BGRA not available"))
		}
		processed.PixelFormat = camera.PixelFormatBGRA
		return camera.Descriptor{Format: f, Settings: processed}, nil
	case camera.BayerRAW:
		return rawDescriptor(caps, f, camera.RawBayer, opts)
	case camera.AppleProRAW:
		return rawDescriptor(caps, f, camera.RawProRAW, opts)
	default:
		return camera.Descriptor{}, newError(ErrFormatUnsupported, f, fmt.Errorf("unknown format %d", int(f)))
	}
}

func rawDescriptor(caps camera.Capabilities, f camera.Format, kind camera.RawKind, opts PlanOptions) (camera.Descriptor, error) {
	rf, ok := caps.FirstRaw(kind)
	if !ok {
		return camera.Descriptor{}, newError(ErrFormatUnsupported, f, fmt.Errorf("no %s pixel format available", f))
	}
	return camera.Descriptor{
		Format: f,
		Settings: camera.Settings{
			RawPixelFormat: rf.Code,
			HighResolution: opts.HighResolution,
		},
	}, nil
}
