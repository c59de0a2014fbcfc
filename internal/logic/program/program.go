// Package program runs a configured list of rotate, pause and finish
// steps against a set of named motors.
package program

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/PiStep/internal/config"
	"github.com/cjeanneret/PiStep/internal/debug"
	"github.com/cjeanneret/PiStep/internal/hw/arbiter"
	"github.com/cjeanneret/PiStep/internal/logic/motion"
	"go.uber.org/multierr"
)

// WaitFunc runs a blocking phase. label describes what is being waited on.
type WaitFunc func(label string, wait func() error) error

// Runner owns the motors built from a config.
type Runner struct {
	motors map[string]*motion.Motor
	order  []*motion.Motor
	tasks  map[string]*motion.Task

	pause func(ctx context.Context, d time.Duration) error
	wait  WaitFunc
}

// Option customizes a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	motorSleep func(time.Duration)
	pause      func(ctx context.Context, d time.Duration) error
	wait       WaitFunc
}

// WithMotorSleep replaces the sleep used between coil writes.
func WithMotorSleep(fn func(time.Duration)) Option {
	return func(o *runnerOptions) { o.motorSleep = fn }
}

// WithPause replaces the sleep used by pause steps.
func WithPause(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *runnerOptions) { o.pause = fn }
}

// WithWait wraps every blocking phase (sync rotations and finish steps).
func WithWait(fn WaitFunc) Option {
	return func(o *runnerOptions) { o.wait = fn }
}

// New creates one motor per cfg.Motors entry. When a motor cannot be
// created the ones already built are torn down.
func New(arb *arbiter.Arbiter, cfg *config.Config, opts ...Option) (*Runner, error) {
	o := runnerOptions{pause: sleepContext, wait: func(_ string, wait func() error) error { return wait() }}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runner{
		motors: make(map[string]*motion.Motor, len(cfg.Motors)),
		tasks:  make(map[string]*motion.Task),
		pause:  o.pause,
		wait:   o.wait,
	}
	for _, mc := range cfg.Motors {
		m, err := motion.New(arb, motion.Config{
			Name:          mc.Name,
			Pins:          mc.Pins,
			FullRotation:  mc.FullRotation,
			MinPulseDelay: cfg.MinPulseDelay(),
			Sleep:         o.motorSleep,
		})
		if err != nil {
			return nil, multierr.Append(err, r.Close())
		}
		r.motors[mc.Name] = m
		r.order = append(r.order, m)
	}
	return r, nil
}

// Motor returns the motor named name.
func (r *Runner) Motor(name string) (*motion.Motor, bool) {
	m, ok := r.motors[name]
	return m, ok
}

// Run executes steps in order. The context is checked between steps;
// a pass already started is never interrupted.
func (r *Runner) Run(ctx context.Context, steps []config.StepConfig) error {
	debug.Section("Program")
	for i, s := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.step(ctx, i+1, s); err != nil {
			return fmt.Errorf("program step %d: %w", i+1, err)
		}
	}
	debug.Live("Program complete (%d steps)", len(steps))
	return nil
}

func (r *Runner) step(ctx context.Context, n int, s config.StepConfig) error {
	switch s.Kind() {
	case config.StepPause:
		debug.Live("Step %d: pause %v", n, s.Pause())
		return r.pause(ctx, s.Pause())

	case config.StepFinish:
		if s.Finish == "all" {
			debug.Live("Step %d: finish all motors", n)
			var err error
			for _, m := range r.order {
				err = multierr.Append(err, r.finish(m))
			}
			return err
		}
		m, ok := r.motors[s.Finish]
		if !ok {
			return fmt.Errorf("unknown motor %q", s.Finish)
		}
		debug.Live("Step %d: finish %s", n, m.Name())
		return r.finish(m)

	default:
		m, ok := r.motors[s.Motor]
		if !ok {
			return fmt.Errorf("unknown motor %q", s.Motor)
		}
		v, err := s.Velocity()
		if err != nil {
			return err
		}
		rot := motion.Rotation{
			Angle:    s.Angle,
			Duration: s.Duration(),
			Velocity: v,
			Sync:     s.Sync,
			Radians:  s.Radians,
		}
		debug.Live("Step %d: rotate %s by %g over %v", n, m.Name(), s.Angle, rot.Duration)
		if !rot.Sync {
			task, err := m.Rotate(rot)
			if err != nil {
				return err
			}
			r.tasks[m.Name()] = task
			return nil
		}
		return r.wait(fmt.Sprintf("rotating %s", m.Name()), func() error {
			_, err := m.Rotate(rot)
			return err
		})
	}
}

// finish waits for the last async pass started on m and reports its error,
// even when the pass already completed.
func (r *Runner) finish(m *motion.Motor) error {
	task, ok := r.tasks[m.Name()]
	if !ok {
		return m.Finish()
	}
	delete(r.tasks, m.Name())
	if !task.Running() {
		return task.Wait()
	}
	return r.wait(fmt.Sprintf("waiting for %s", m.Name()), task.Wait)
}

// Close waits for every motor and releases its pins.
func (r *Runner) Close() error {
	err := motion.Teardown(r.order...)
	r.order = nil
	r.motors = map[string]*motion.Motor{}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
