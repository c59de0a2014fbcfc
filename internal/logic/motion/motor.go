// Package motion drives 28BYJ-48 class motors: each Motor owns four pins
// claimed from an Arbiter and runs at most one rotation pass at a time,
// either on the caller's goroutine or on its own.
package motion

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/PiStep/internal/debug"
	"github.com/cjeanneret/PiStep/internal/hw/arbiter"
	"github.com/cjeanneret/PiStep/internal/hw/stepper"
	"github.com/cjeanneret/PiStep/internal/logic/profile"
)

var (
	// ErrState is the class of errors caused by calling a motor in the wrong state.
	ErrState = errors.New("invalid motor state")
	// ErrAlreadyRunning is returned by Rotate while a pass is in progress.
	ErrAlreadyRunning = fmt.Errorf("%w: step motor already running", ErrState)
	// ErrTornDown is returned by every operation on a torn-down motor.
	ErrTornDown = fmt.Errorf("%w: step motor was torn down", ErrState)
)

// Config describes one motor.
type Config struct {
	Name          string
	Pins          []int // coil order IN1..IN4
	FullRotation  int   // phase cycles per turn; 0 means profile.DefaultFullRotation
	MinPulseDelay time.Duration
	Sleep         func(time.Duration) // pass-through to the sequencer, for tests
}

// Rotation is one rotate request.
type Rotation struct {
	Angle    float64 // signed, degrees unless Radians
	Duration time.Duration
	Velocity *profile.Velocity // nil for constant speed
	Sync     bool              // run on the caller's goroutine
	Radians  bool
}

// Motor is a stepper motor bound to four claimed pins.
type Motor struct {
	name          string
	arb           *arbiter.Arbiter
	pins          arbiter.PinSet
	fullRotation  int
	minPulseDelay time.Duration
	seq           *stepper.Sequencer

	mu     sync.Mutex
	task   *Task
	closed bool
}

// New claims cfg.Pins from arb and returns an idle motor. Nothing is
// registered when it fails.
func New(arb *arbiter.Arbiter, cfg Config) (*Motor, error) {
	full := cfg.FullRotation
	if full == 0 {
		full = profile.DefaultFullRotation
	}
	if full < 0 {
		return nil, fmt.Errorf("%w: full rotation must be > 0, got %d", arbiter.ErrConfiguration, full)
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("motor%v", cfg.Pins)
	}

	m := &Motor{
		name:          name,
		arb:           arb,
		pins:          append(arbiter.PinSet(nil), cfg.Pins...),
		fullRotation:  full,
		minPulseDelay: cfg.MinPulseDelay,
		seq:           stepper.NewSequencer(arb.Driver(), stepper.Config{Name: name, Sleep: cfg.Sleep}),
	}
	if err := arb.Claim(m, m.pins); err != nil {
		return nil, fmt.Errorf("create motor %s: %w", name, err)
	}
	return m, nil
}

// Name returns the motor name.
func (m *Motor) Name() string {
	return m.name
}

// Pins returns the coil pins in forward order.
func (m *Motor) Pins() []int {
	return append([]int(nil), m.pins...)
}

// FullRotation returns the phase cycles per turn.
func (m *Motor) FullRotation() int {
	return m.fullRotation
}

// Rotate compiles r and starts the pass. With r.Sync the call returns
// once the pass is over; otherwise it returns immediately and the pass
// runs on its own goroutine. Compilation errors are returned before any
// pin is written.
func (m *Motor) Rotate(r Rotation) (*Task, error) {
	if err := m.checkIdle(); err != nil {
		return nil, err
	}

	// Velocity.Func is caller code; it runs without m.mu held.
	plan, err := profile.Compile(profile.Request{
		Angle:         r.Angle,
		Radians:       r.Radians,
		Duration:      r.Duration,
		FullRotation:  m.fullRotation,
		Velocity:      r.Velocity,
		MinPulseDelay: m.minPulseDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("rotate %s: %w", m.name, err)
	}

	m.mu.Lock()
	if err := m.checkIdleLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	pins := m.pins
	if plan.Reverse {
		pins = pins.Reversed()
	}
	task := newTask(plan)
	m.task = task
	m.mu.Unlock()

	if r.Sync {
		m.run(task, pins)
		return task, task.err
	}
	go m.run(task, pins)
	return task, nil
}

func (m *Motor) checkIdle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkIdleLocked()
}

func (m *Motor) checkIdleLocked() error {
	if m.closed {
		return fmt.Errorf("rotate %s: %w", m.name, ErrTornDown)
	}
	if m.task != nil && m.task.Running() {
		return fmt.Errorf("rotate %s: %w", m.name, ErrAlreadyRunning)
	}
	return nil
}

func (m *Motor) run(task *Task, pins arbiter.PinSet) {
	err := m.seq.Run(task.plan, pins)
	if err != nil {
		debug.Error(err)
	}
	task.finish(err)
}

// Finish blocks until the current pass completes and returns its error.
// It returns nil at once when the motor is idle.
func (m *Motor) Finish() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("finish %s: %w", m.name, ErrTornDown)
	}
	task := m.task
	m.mu.Unlock()

	if task == nil || !task.Running() {
		return nil
	}
	return task.Wait()
}

// IsRunning reports whether a pass is in progress.
// A torn-down motor is never running.
func (m *Motor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.task != nil && m.task.Running()
}

// IsStopped is the negation of IsRunning.
func (m *Motor) IsStopped() bool {
	return !m.IsRunning()
}

// Teardown waits for the current pass, then gives the pins back to the
// arbiter. The motor cannot be used afterwards.
func (m *Motor) Teardown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("teardown %s: %w", m.name, ErrTornDown)
	}
	m.closed = true
	task := m.task
	m.mu.Unlock()

	if task != nil {
		<-task.Done()
	}
	if err := m.arb.Release(m.pins); err != nil {
		return fmt.Errorf("teardown %s: %w", m.name, err)
	}
	debug.Live("Motor %s torn down", m.name)
	return nil
}
