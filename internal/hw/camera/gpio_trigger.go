package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/gpio"
)

// GPIOTrigger fires a camera through a 3-pin remote connector
// (Nikon style) before every exposure and lets an inner Device deliver
// the photo:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// There is a single shutter line, so concurrent exposures are
// triggered one after the other.
type GPIOTrigger struct {
	inner        Device
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time

	mu sync.Mutex
}

// NewGPIOTrigger configures both lines as outputs, HIGH (inactive).
func NewGPIOTrigger(inner Device, g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) *GPIOTrigger {
	_ = g.SetupPin(focusPin, gpio.Output)
	_ = g.SetupPin(shutterPin, gpio.Output)
	_ = g.WritePin(focusPin, gpio.High)
	_ = g.WritePin(shutterPin, gpio.High)

	return &GPIOTrigger{
		inner:        inner,
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}
}

func (t *GPIOTrigger) Ready() error {
	return t.inner.Ready()
}

func (t *GPIOTrigger) Capabilities() Capabilities {
	return t.inner.Capabilities()
}

// BeginCapture triggers the shutter, then hands the request to the inner
// device. A trigger failure is reported as the exposure's result.
func (t *GPIOTrigger) BeginCapture(d Descriptor, cb Callback) {
	if err := t.Shoot(); err != nil {
		cb.PhotoProcessed(nil, fmt.Errorf("trigger %s exposure: %w", d.Format, err))
		return
	}
	t.inner.BeginCapture(d, cb)
}

// Shoot runs FOCUS -> wait for AF -> SHUTTER -> hold -> release.
func (t *GPIOTrigger) Shoot() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	debug.Printf("Camera: triggering shot (focus=%d, shutter=%d)", t.focusPin, t.shutterPin)

	debug.Verbose("Camera: activating FOCUS (pin %d -> LOW)", t.focusPin)
	if err := t.gpio.WritePin(t.focusPin, gpio.Low); err != nil {
		return err
	}

	debug.Verbose("Camera: waiting for autofocus (%v)", t.focusDelay)
	time.Sleep(t.focusDelay)

	debug.Verbose("Camera: pulsing SHUTTER (pin %d, %v)", t.shutterPin, t.shutterDelay)
	if err := gpio.Pulse(t.gpio, t.shutterPin, gpio.Low, t.shutterDelay); err != nil {
		// Release FOCUS on error
		_ = t.gpio.WritePin(t.focusPin, gpio.High)
		return err
	}

	debug.Verbose("Camera: releasing FOCUS (pin %d -> HIGH)", t.focusPin)
	return t.gpio.WritePin(t.focusPin, gpio.High)
}
