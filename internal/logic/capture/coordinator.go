package capture

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/camera"
)

// Coordinator fans one multi-format request out to the device and fans
// the completions back into a single outcome. A Coordinator serves a
// single aggregate operation.
//
// All shared state is guarded by mu. The sink is settled by whichever
// call flips resolved under mu, after unlocking.
type Coordinator struct {
	store Persister

	mu         sync.Mutex
	dispatched bool
	expected   int
	artifacts  []Artifact
	live       map[uint64]*Handle
	resolved   bool
	sink       ResultSink
	stopCtx    func() bool
	skipped    []Skip
}

// NewCoordinator returns a coordinator persisting artifacts through st.
func NewCoordinator(st Persister) *Coordinator {
	return &Coordinator{
		store: st,
		live:  make(map[uint64]*Handle),
	}
}

// DispatchAll starts one capture per descriptor and returns without
// waiting. The outcome is delivered to sink exactly once: the artifacts
// in completion order, or the first failure. Cancelling ctx cancels
// the aggregate.
func (c *Coordinator) DispatchAll(ctx context.Context, descriptors []camera.Descriptor, dev camera.Device, sink ResultSink) {
	c.dispatch(ctx, descriptors, dev, sink, nil)
}

// DispatchPlan is DispatchAll for a built plan. When every format was
// skipped the rejection carries the skip reasons.
func (c *Coordinator) DispatchPlan(ctx context.Context, plan Plan, dev camera.Device, sink ResultSink) {
	c.mu.Lock()
	if !c.dispatched {
		c.skipped = slices.Clone(plan.Skipped)
	}
	c.mu.Unlock()

	var skipped []error
	for _, s := range plan.Skipped {
		skipped = append(skipped, s.Err)
	}
	c.dispatch(ctx, plan.Descriptors, dev, sink, errors.Join(skipped...))
}

func (c *Coordinator) dispatch(ctx context.Context, descriptors []camera.Descriptor, dev camera.Device, sink ResultSink, emptyCause error) {
	if err := c.bind(sink); err != nil {
		sink.Reject(err)
		return
	}

	if err := ctx.Err(); err != nil {
		c.fail(newError(ErrCancelled, camera.FormatUnknown, context.Cause(ctx)))
		return
	}
	if err := dev.Ready(); err != nil {
		c.fail(newError(ErrDeviceNotReady, camera.FormatUnknown, err))
		return
	}
	if len(descriptors) == 0 {
		c.fail(newError(ErrNoFormats, camera.FormatUnknown, emptyCause))
		return
	}

	handles := c.register(ctx, descriptors)
	for _, h := range handles {
		debug.Dispatch(h.format.String(), h.id)
		go dev.BeginCapture(h.descriptor, h)
	}
}

// bind attaches the sink; a coordinator accepts a single dispatch.
func (c *Coordinator) bind(sink ResultSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dispatched {
		return newError(ErrAlreadyDispatched, camera.FormatUnknown, nil)
	}
	c.dispatched = true
	if c.resolved {
		return newError(ErrCancelled, camera.FormatUnknown, nil)
	}
	c.sink = sink
	return nil
}

// register creates every handle before any capture starts, so no
// callback can reach the coordinator for an unknown handle.
func (c *Coordinator) register(ctx context.Context, descriptors []camera.Descriptor) []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return nil
	}

	c.expected = len(descriptors)
	handles := make([]*Handle, 0, len(descriptors))
	for _, d := range descriptors {
		h := newHandle(c, c.store, d)
		c.live[h.id] = h
		handles = append(handles, h)
	}
	c.stopCtx = context.AfterFunc(ctx, func() {
		c.cancel(context.Cause(ctx))
	})
	debug.Info("Dispatching %d capture requests", c.expected)
	return handles
}

// release removes a handle from the live set. It reports false when
// the handle is unknown or was already released.
func (c *Coordinator) release(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(id)
}

func (c *Coordinator) releaseLocked(id uint64) bool {
	if _, ok := c.live[id]; !ok {
		return false
	}
	delete(c.live, id)
	return true
}

func (c *Coordinator) artifactReady(h *Handle, a Artifact) {
	c.mu.Lock()
	if !c.releaseLocked(h.id) || c.resolved {
		c.mu.Unlock()
		debug.Verbose("Coordinator: %s artifact from handle %d arrived after resolution, ignored", h.format, h.id)
		return
	}
	c.artifacts = append(c.artifacts, a)
	debug.Live("Collected %d/%d artifacts", len(c.artifacts), c.expected)
	if len(c.artifacts) < c.expected {
		c.mu.Unlock()
		return
	}

	c.resolved = true
	out := slices.Clone(c.artifacts)
	sink, stop := c.sink, c.stopCtx
	c.mu.Unlock()

	stop()
	debug.Info("All %d artifacts captured", len(out))
	sink.Resolve(out)
}

func (c *Coordinator) artifactFailed(h *Handle, err error) {
	c.mu.Lock()
	if !c.releaseLocked(h.id) || c.resolved {
		c.mu.Unlock()
		debug.Verbose("Coordinator: failure from handle %d after resolution ignored: %v", h.id, err)
		return
	}
	c.resolved = true
	sink, stop := c.sink, c.stopCtx
	c.mu.Unlock()

	stop()
	debug.Error(err)
	sink.Reject(err)
}

func (c *Coordinator) captureSessionEnded(h *Handle, err error) {
	if err != nil {
		c.artifactFailed(h, err)
		return
	}
	debug.Verbose("Handle %d (%s): capture session ended", h.id, h.format)
}

// fail rejects the sink unless the aggregate is already resolved.
func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	sink, stop := c.sink, c.stopCtx
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	debug.Error(err)
	sink.Reject(err)
}

// Cancel rejects the aggregate with ErrCancelled. Callbacks arriving
// afterwards only release their handles. Cancel after resolution is a
// no-op; Cancel before DispatchAll makes the dispatch reject.
func (c *Coordinator) Cancel() {
	c.cancel(nil)
}

func (c *Coordinator) cancel(cause error) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	sink, stop := c.sink, c.stopCtx
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if sink == nil {
		return
	}
	err := newError(ErrCancelled, camera.FormatUnknown, cause)
	debug.Error(err)
	sink.Reject(err)
}

// Expected returns the number of dispatched requests.
func (c *Coordinator) Expected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expected
}

// Live returns the number of handles still awaiting their terminal callback.
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Skipped returns the formats the dispatched plan left out.
func (c *Coordinator) Skipped() []Skip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.skipped)
}

// Resolved reports whether the sink has been (or is being) settled.
func (c *Coordinator) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}
