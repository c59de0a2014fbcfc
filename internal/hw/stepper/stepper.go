package stepper

import (
	"fmt"
	"time"

	"github.com/cjeanneret/PiStep/internal/debug"
	"github.com/cjeanneret/PiStep/internal/hw/gpio"
	"github.com/cjeanneret/PiStep/internal/logic/profile"
)

// Config holds the wiring of one sequencer.
type Config struct {
	Name  string              // motor name, for logs
	Sleep func(time.Duration) // defaults to time.Sleep
}

// Sequencer energizes the four coils of a unipolar motor, one pin at a
// time, following a compiled plan. It is the only code that writes pins
// while a motor turns.
type Sequencer struct {
	gpio  gpio.Driver
	name  string
	sleep func(time.Duration)
}

// NewSequencer creates a sequencer writing through g.
func NewSequencer(g gpio.Driver, cfg Config) *Sequencer {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Sequencer{
		gpio:  g,
		name:  cfg.Name,
		sleep: sleep,
	}
}

// Run walks plan on pins, which must already be in direction order.
// A rest segment only sleeps; the coils stay low.
func (s *Sequencer) Run(plan *profile.Plan, pins []int) error {
	if len(pins) != profile.Phases {
		return fmt.Errorf("sequencer %s: need %d pins, got %d", s.name, profile.Phases, len(pins))
	}

	debug.Rotation(s.name, plan.Steps, plan.Direction(), plan.Duration())
	start := time.Now()

	for i, seg := range plan.Segments {
		if seg.Pulses == 0 {
			s.sleep(seg.Budget)
			continue
		}
		for n := 0; n < seg.Pulses; n++ {
			if err := s.cycle(pins, seg.Delay); err != nil {
				return fmt.Errorf("sequencer %s: segment %d cycle %d: %w", s.name, i, n, err)
			}
		}
	}

	debug.Live("Motor %s: done in %v", s.name, time.Since(start).Round(time.Millisecond))
	return nil
}

// cycle pulses each pin in turn: one physical step.
func (s *Sequencer) cycle(pins []int, delay time.Duration) error {
	for _, pin := range pins {
		if err := s.gpio.WritePin(pin, gpio.High); err != nil {
			return err
		}
		s.sleep(delay)
		if err := s.gpio.WritePin(pin, gpio.Low); err != nil {
			return err
		}
	}
	return nil
}
