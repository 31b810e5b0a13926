package capture

import (
	"context"

	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/camera"
)

// TakeMultiFormatPhoto captures the selected formats (all five when
// formats is empty) as one aggregate and settles sink with the result.
// Formats the device cannot deliver are skipped before dispatch. The
// returned Coordinator can be used to cancel.
func TakeMultiFormatPhoto(ctx context.Context, dev camera.Device, st Persister, sink ResultSink, formats []camera.Format, opts PlanOptions) *Coordinator {
	plan := BuildPlan(dev.Capabilities(), formats, opts)
	for _, s := range plan.Skipped {
		debug.Skip(s.Format.String(), s.Err)
	}
	for _, d := range plan.Descriptors {
		debug.PrintStruct("Descriptor "+d.Format.String(), d.Settings)
	}

	c := NewCoordinator(st)
	c.DispatchPlan(ctx, plan, dev, sink)
	return c
}
