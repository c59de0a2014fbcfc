// Package profile turns a rotation request into a pulse schedule.
//
// A rotation of Steps phase cycles is split into windows of equal time.
// Each window gets a whole number of cycles that tracks the requested
// velocity shape, and the cycles of a window are spread evenly over it.
package profile

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/PiStep/internal/debug"
)

// Phases is the number of pins energized per phase cycle.
const Phases = 4

// MinPulseDelay is the shortest pin hold a 28BYJ-48 follows reliably.
const MinPulseDelay = 1950 * time.Microsecond

var (
	// ErrInfeasibleMotion means the schedule would pulse faster than the floor.
	ErrInfeasibleMotion = errors.New("step delay is too small")
	// ErrInvalidRequest means the request itself is malformed.
	ErrInvalidRequest = errors.New("invalid rotation request")
)

// VelocityFunc maps a sample position to a velocity magnitude.
type VelocityFunc func(x float64) float64

// Velocity describes the speed shape of a rotation. Func is sampled at
// the midpoint of each index in [Start, End); when Start > End the
// indices count down and End is still excluded.
type Velocity struct {
	Func  VelocityFunc
	Start int
	End   int
}

// Windows returns the number of time windows the shape defines.
func (v Velocity) Windows() int {
	if v.End > v.Start {
		return v.End - v.Start
	}
	return v.Start - v.End
}

// Samples evaluates Func at every window midpoint, in window order.
func (v Velocity) Samples() ([]float64, error) {
	if v.Func == nil {
		return nil, fmt.Errorf("%w: velocity function is nil", ErrInvalidRequest)
	}
	n := v.Windows()
	if n == 0 {
		return nil, fmt.Errorf("%w: velocity range [%d, %d) is empty", ErrInvalidRequest, v.Start, v.End)
	}
	dir := 1
	if v.Start > v.End {
		dir = -1
	}
	samples := make([]float64, n)
	for i := range samples {
		x := float64(v.Start+i*dir) + 0.5*float64(dir)
		s := v.Func(x)
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return nil, fmt.Errorf("%w: velocity at %g is %g", ErrInvalidRequest, x, s)
		}
		samples[i] = s
	}
	return samples, nil
}

// Request holds everything needed to compile one rotation.
type Request struct {
	Angle         float64 // signed; negative reverses the pin order
	Radians       bool
	Duration      time.Duration
	FullRotation  int           // 0 means DefaultFullRotation
	Velocity      *Velocity     // nil for constant speed
	MinPulseDelay time.Duration // 0 means MinPulseDelay
}

// Segment is a run of identical phase cycles. Delay is the hold time of
// each pin within a cycle. A segment with no pulses is a rest of Budget.
type Segment struct {
	Pulses int
	Delay  time.Duration
	Budget time.Duration
}

// Plan is a compiled rotation.
type Plan struct {
	Steps    int
	Reverse  bool
	Segments []Segment
	MinDelay time.Duration // shortest Delay across Segments
}

// Pulses returns the number of phase cycles across all segments.
func (p *Plan) Pulses() int {
	total := 0
	for _, s := range p.Segments {
		total += s.Pulses
	}
	return total
}

// Duration returns the sum of the segment time budgets.
func (p *Plan) Duration() time.Duration {
	var d time.Duration
	for _, s := range p.Segments {
		d += s.Budget
	}
	return d
}

// Direction names the rotation sense for logs.
func (p *Plan) Direction() string {
	if p.Reverse {
		return "backward"
	}
	return "forward"
}

// Compile builds the pulse schedule for req. It never sleeps or touches
// pins; an infeasible schedule is rejected here, before any pulse.
func Compile(req Request) (*Plan, error) {
	if math.IsNaN(req.Angle) || math.IsInf(req.Angle, 0) {
		return nil, fmt.Errorf("%w: angle %g", ErrInvalidRequest, req.Angle)
	}
	if req.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be > 0, got %v", ErrInvalidRequest, req.Duration)
	}
	full := req.FullRotation
	if full == 0 {
		full = DefaultFullRotation
	}
	if full < 0 {
		return nil, fmt.Errorf("%w: full rotation must be > 0, got %d", ErrInvalidRequest, full)
	}
	floor := req.MinPulseDelay
	if floor <= 0 {
		floor = MinPulseDelay
	}

	var samples []float64
	if req.Velocity != nil {
		var err error
		if samples, err = req.Velocity.Samples(); err != nil {
			return nil, err
		}
	}

	plan := &Plan{
		Steps:   StepsFromAngle(Degrees(req.Angle, req.Radians), full),
		Reverse: req.Angle < 0,
	}
	if plan.Steps == 0 {
		return plan, nil
	}

	var minNs float64
	if samples == nil {
		minNs = float64(req.Duration) / float64(plan.Steps) / Phases
		plan.Segments = []Segment{{
			Pulses: plan.Steps,
			Delay:  nanos(minNs),
			Budget: req.Duration,
		}}
	} else {
		counts, err := Distribute(samples, plan.Steps)
		if err != nil {
			return nil, err
		}
		budgetNs := float64(req.Duration) / float64(len(counts))
		peak := 0
		plan.Segments = make([]Segment, len(counts))
		for i, k := range counts {
			seg := Segment{Pulses: k, Budget: nanos(budgetNs)}
			if k > 0 {
				seg.Delay = nanos(budgetNs / float64(k) / Phases)
			}
			if k > peak {
				peak = k
			}
			plan.Segments[i] = seg
		}
		// the busiest window sets the shortest delay
		minNs = budgetNs / float64(peak) / Phases
	}
	plan.MinDelay = nanos(minNs)

	if minNs < float64(floor) {
		return nil, fmt.Errorf("%w: %v per pin is below the %v floor", ErrInfeasibleMotion, plan.MinDelay, floor)
	}

	if debug.IsEnabled(debug.LevelVerbose) {
		debug.Verbose("Compiled %d steps (%s) into %d segment(s), min delay %v",
			plan.Steps, plan.Direction(), len(plan.Segments), plan.MinDelay)
		for i, s := range plan.Segments {
			debug.Window(i, s.Pulses, s.Delay, s.Budget)
		}
	}
	return plan, nil
}

// Distribute splits steps across windows in proportion to samples.
// Each window gets the floor of its share; the fractional parts are
// carried forward and paid out as one extra pulse whenever the carry
// rounds to a whole step, so the counts always sum to steps.
func Distribute(samples []float64, steps int) ([]int, error) {
	if steps < 0 {
		return nil, fmt.Errorf("%w: negative step count %d", ErrInvalidRequest, steps)
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	if len(samples) == 0 || sum <= 0 {
		return nil, fmt.Errorf("%w: velocity samples sum to %g", ErrInvalidRequest, sum)
	}

	unit := sum / float64(steps)
	counts := make([]int, len(samples))
	carry := 0.0
	for i, s := range samples {
		share := s / unit
		whole := math.Floor(share)
		carry += share - whole
		if math.Round(carry) >= 1 {
			whole++
			carry--
		}
		counts[i] = int(whole)
	}
	return counts, nil
}

func nanos(ns float64) time.Duration {
	return time.Duration(math.Round(ns))
}
