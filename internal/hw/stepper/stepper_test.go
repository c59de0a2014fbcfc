package stepper

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/cjeanneret/PiStep/internal/hw/gpio"
	"github.com/cjeanneret/PiStep/internal/logic/profile"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls   []gpioCall
	failOn  int // fail the n-th write (1-based), 0 = never
	nWrites int
}

type gpioCall struct {
	op    string // "setup", "write", "release"
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetNumberingMode(mode gpio.NumberingMode) error { return nil }

func (d *recordingDriver) ConfigureOutput(pins []int, initial gpio.Level) error {
	for _, pin := range pins {
		d.calls = append(d.calls, gpioCall{op: "setup", pin: pin, level: initial})
	}
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.nWrites++
	if d.failOn > 0 && d.nWrites == d.failOn {
		return errors.New("line busy")
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReleasePins(pins []int) error {
	for _, pin := range pins {
		d.calls = append(d.calls, gpioCall{op: "release", pin: pin})
	}
	return nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

// highPins returns the order in which pins were energized.
func (d *recordingDriver) highPins() []int {
	var pins []int
	for _, c := range d.writeCalls() {
		if c.level == gpio.High {
			pins = append(pins, c.pin)
		}
	}
	return pins
}

// fakeClock accumulates requested sleeps instead of sleeping.
type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(d time.Duration) { c.sleeps = append(c.sleeps, d) }

func (c *fakeClock) total() time.Duration {
	var t time.Duration
	for _, d := range c.sleeps {
		t += d
	}
	return t
}

func newSequencer() (*Sequencer, *recordingDriver, *fakeClock) {
	drv := &recordingDriver{}
	clk := &fakeClock{}
	return NewSequencer(drv, Config{Name: "test", Sleep: clk.Sleep}), drv, clk
}

func TestSequencer_UniformHalfTurn(t *testing.T) {
	s, drv, clk := newSequencer()
	plan, err := profile.Compile(profile.Request{Angle: 180, Duration: 20 * time.Second, FullRotation: 512})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	pins := []int{6, 13, 19, 26}
	if err := s.Run(plan, pins); err != nil {
		t.Fatalf("Run: %v", err)
	}

	writes := drv.writeCalls()
	if len(writes) != 256*4*2 {
		t.Fatalf("expected %d writes, got %d", 256*4*2, len(writes))
	}
	if got := clk.total(); got != 20*time.Second {
		t.Errorf("total sleep = %v, want 20s", got)
	}
	for _, d := range clk.sleeps {
		if d != 19531250*time.Nanosecond {
			t.Fatalf("sleep = %v, want 19.53125ms", d)
		}
	}
	// Every pin is pulsed once per cycle.
	for _, pin := range pins {
		n := 0
		for _, p := range drv.highPins() {
			if p == pin {
				n++
			}
		}
		if n != 256 {
			t.Errorf("pin %d energized %d times, want 256", pin, n)
		}
	}
}

func TestSequencer_PulsePattern(t *testing.T) {
	s, drv, _ := newSequencer()
	plan := &profile.Plan{Steps: 1, Segments: []profile.Segment{{Pulses: 1, Delay: time.Millisecond, Budget: 4 * time.Millisecond}}}

	if err := s.Run(plan, []int{1, 2, 3, 4}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []gpioCall{
		{"write", 1, gpio.High}, {"write", 1, gpio.Low},
		{"write", 2, gpio.High}, {"write", 2, gpio.Low},
		{"write", 3, gpio.High}, {"write", 3, gpio.Low},
		{"write", 4, gpio.High}, {"write", 4, gpio.Low},
	}
	if got := drv.writeCalls(); !reflect.DeepEqual(got, want) {
		t.Errorf("writes = %v\nwant %v", got, want)
	}
}

func TestSequencer_ReverseOrder(t *testing.T) {
	s, drv, _ := newSequencer()
	plan := &profile.Plan{Steps: 2, Reverse: true, Segments: []profile.Segment{{Pulses: 2, Delay: time.Millisecond}}}

	if err := s.Run(plan, []int{26, 19, 13, 6}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []int{26, 19, 13, 6, 26, 19, 13, 6}
	if got := drv.highPins(); !reflect.DeepEqual(got, want) {
		t.Errorf("energize order = %v, want %v", got, want)
	}
}

func TestSequencer_RestWindowDoesNotTouchPins(t *testing.T) {
	s, drv, clk := newSequencer()
	plan := &profile.Plan{Steps: 1, Segments: []profile.Segment{
		{Pulses: 0, Budget: 200 * time.Millisecond},
		{Pulses: 1, Delay: 50 * time.Millisecond, Budget: 200 * time.Millisecond},
		{Pulses: 0, Budget: 200 * time.Millisecond},
	}}

	if err := s.Run(plan, []int{1, 2, 3, 4}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(drv.writeCalls()); got != 8 {
		t.Errorf("writes = %d, want 8 (one cycle)", got)
	}
	want := []time.Duration{
		200 * time.Millisecond,
		50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond,
		200 * time.Millisecond,
	}
	if !reflect.DeepEqual(clk.sleeps, want) {
		t.Errorf("sleeps = %v, want %v", clk.sleeps, want)
	}
}

func TestSequencer_VelocityPlanTiming(t *testing.T) {
	s, drv, clk := newSequencer()
	plan, err := profile.Compile(profile.Request{
		Angle:        180,
		Duration:     20 * time.Second,
		FullRotation: 512,
		Velocity:     &profile.Velocity{Func: func(x float64) float64 { return x }, Start: 0, End: 100},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := s.Run(plan, []int{6, 13, 19, 26}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(drv.highPins()); got != 256*4 {
		t.Errorf("energized %d times, want %d", got, 256*4)
	}
	// Per-window rounding to whole nanoseconds may drift a little.
	if diff := clk.total() - 20*time.Second; diff > time.Microsecond || diff < -time.Microsecond {
		t.Errorf("total sleep = %v, want ~20s", clk.total())
	}
}

func TestSequencer_EmptyPlan(t *testing.T) {
	s, drv, clk := newSequencer()
	if err := s.Run(&profile.Plan{}, []int{1, 2, 3, 4}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(drv.calls) != 0 || len(clk.sleeps) != 0 {
		t.Errorf("empty plan should neither write nor sleep, got %d calls, %d sleeps", len(drv.calls), len(clk.sleeps))
	}
}

func TestSequencer_WriteErrorStops(t *testing.T) {
	s, drv, _ := newSequencer()
	drv.failOn = 5
	plan := &profile.Plan{Steps: 10, Segments: []profile.Segment{{Pulses: 10, Delay: time.Millisecond}}}

	if err := s.Run(plan, []int{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error from failing write")
	}
	if got := len(drv.writeCalls()); got != 4 {
		t.Errorf("writes after failure = %d, want 4", got)
	}
}

func TestSequencer_WrongPinCount(t *testing.T) {
	s, _, _ := newSequencer()
	if err := s.Run(&profile.Plan{}, []int{1, 2, 3}); err == nil {
		t.Error("expected error for 3 pins")
	}
}

func TestSequencer_DefaultSleep(t *testing.T) {
	s := NewSequencer(&recordingDriver{}, Config{Name: "real"})
	if s.sleep == nil {
		t.Fatal("default sleep should be set")
	}
	// A 1-cycle plan at 1µs per pin returns quickly with real sleeps.
	plan := &profile.Plan{Steps: 1, Segments: []profile.Segment{{Pulses: 1, Delay: time.Microsecond}}}
	if err := s.Run(plan, []int{1, 2, 3, 4}); err != nil {
		t.Errorf("Run: %v", err)
	}
}
