package motion

import (
	"github.com/cjeanneret/PiStep/internal/hw/arbiter"
	"go.uber.org/multierr"
)

// Teardown tears down each motor in turn and combines the failures.
func Teardown(motors ...*Motor) error {
	var err error
	for _, m := range motors {
		err = multierr.Append(err, m.Teardown())
	}
	return err
}

// TeardownAll tears down every motor still holding pins on arb.
func TeardownAll(arb *arbiter.Arbiter) error {
	return arb.TeardownAll()
}

// With creates a motor, hands it to fn and tears it down on every exit
// path, including a panic in fn.
func With(arb *arbiter.Arbiter, cfg Config, fn func(*Motor) error) (err error) {
	m, err := New(arb, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, m.Teardown())
	}()
	return fn(m)
}
