package camera

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/multishot/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	mu      sync.Mutex
	calls   []gpioCall
	failPin int
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failPin != 0 && pin == d.failPin && level == gpio.Low {
		return errors.New("pin stuck")
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

func (d *recordingDriver) writeCalls() []gpioCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func newTestTrigger(drv *recordingDriver) (*GPIOTrigger, *Simulated) {
	inner := NewSimulated(SimulatedConfig{Capabilities: FullCapabilities()})
	return NewGPIOTrigger(inner, drv, 24, 25, time.Microsecond, time.Microsecond), inner
}

func TestGPIOTrigger_PinsInitializedHigh(t *testing.T) {
	drv := &recordingDriver{}
	newTestTrigger(drv)

	focusHigh, shutterHigh := false, false
	for _, c := range drv.writeCalls() {
		if c.pin == 24 && c.level == gpio.High {
			focusHigh = true
		}
		if c.pin == 25 && c.level == gpio.High {
			shutterHigh = true
		}
	}
	if !focusHigh {
		t.Error("focus pin should be initialized to HIGH")
	}
	if !shutterHigh {
		t.Error("shutter pin should be initialized to HIGH")
	}
}

func TestGPIOTrigger_ShootSequence(t *testing.T) {
	drv := &recordingDriver{}
	trig, _ := newTestTrigger(drv)
	drv.reset()

	if err := trig.Shoot(); err != nil {
		t.Fatalf("Shoot: %v", err)
	}

	expected := []struct {
		pin   int
		level gpio.Level
		desc  string
	}{
		{24, gpio.Low, "focus LOW (activate AF)"},
		{25, gpio.Low, "shutter LOW (trigger)"},
		{25, gpio.High, "shutter HIGH (release)"},
		{24, gpio.High, "focus HIGH (release)"},
	}

	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, exp := range expected {
		if writes[i].pin != exp.pin || writes[i].level != exp.level {
			t.Errorf("step %d (%s): pin=%d level=%v, want pin=%d level=%v",
				i, exp.desc, writes[i].pin, writes[i].level, exp.pin, exp.level)
		}
	}
}

func TestGPIOTrigger_ShutterFailureReleasesFocus(t *testing.T) {
	drv := &recordingDriver{failPin: 25}
	trig, _ := newTestTrigger(drv)
	drv.reset()

	if err := trig.Shoot(); err == nil {
		t.Fatal("expected error from stuck shutter pin")
	}
	writes := drv.writeCalls()
	last := writes[len(writes)-1]
	if last.pin != 24 || last.level != gpio.High {
		t.Errorf("last write = %+v, want focus released HIGH", last)
	}
}

func TestGPIOTrigger_BeginCaptureDelegates(t *testing.T) {
	drv := &recordingDriver{}
	trig, inner := newTestTrigger(drv)

	cb := newRecordingCallback()
	trig.BeginCapture(Descriptor{Format: HEVC}, cb)
	cb.wait(t)

	if cb.photoErr != nil || cb.photo == nil {
		t.Fatalf("expected photo from inner device, got %v, %v", cb.photo, cb.photoErr)
	}
	if inner.Started() != 1 {
		t.Errorf("inner Started() = %d, want 1", inner.Started())
	}
}

func TestGPIOTrigger_TriggerFailureReported(t *testing.T) {
	drv := &recordingDriver{failPin: 24}
	trig, inner := newTestTrigger(drv)

	cb := newRecordingCallback()
	trig.BeginCapture(Descriptor{Format: JPEG}, cb)

	if cb.photoErr == nil {
		t.Fatal("trigger failure should be reported through PhotoProcessed")
	}
	if inner.Started() != 0 {
		t.Error("inner device must not be asked to capture after a trigger failure")
	}
}

func TestGPIOTrigger_DelegatesReadyAndCapabilities(t *testing.T) {
	drv := &recordingDriver{}
	trig, inner := newTestTrigger(drv)
	inner.SetReady(ErrPhotoDisabled)
	if !errors.Is(trig.Ready(), ErrPhotoDisabled) {
		t.Errorf("Ready() = %v, want ErrPhotoDisabled", trig.Ready())
	}
	if !trig.Capabilities().SupportsPixelFormat(PixelFormatBGRA) {
		t.Error("Capabilities should come from the inner device")
	}
}

func TestGPIOTrigger_ImplementsDevice(t *testing.T) {
	var _ Device = &GPIOTrigger{}
	var _ Device = &Simulated{}
}
