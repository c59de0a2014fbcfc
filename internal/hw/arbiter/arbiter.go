// Package arbiter keeps track of which GPIO lines belong to which motor.
//
// An Arbiter is the single owner of the numbering mode and of the claimed
// pin registry. Every mutation is serialized by one mutex so motors living
// on different goroutines can be created and torn down concurrently.
package arbiter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cjeanneret/PiStep/internal/debug"
	"github.com/cjeanneret/PiStep/internal/hw/gpio"
	"go.uber.org/multierr"
)

// Phases is the number of lines a 4-phase unipolar motor needs.
const Phases = 4

var (
	// ErrConfiguration is returned when a pin set cannot be claimed.
	ErrConfiguration = errors.New("pin configuration error")
	// ErrNotClaimed is returned when releasing pins nobody holds.
	ErrNotClaimed = errors.New("pins not claimed")
	// ErrModeNotSet is reported when a claim happens before SetMode.
	// It is a warning unless the arbiter runs in strict mode.
	ErrModeNotSet = errors.New("pin numbering mode was not set")
	// ErrModeConflict is returned when SetMode tries to change an applied mode.
	ErrModeConflict = errors.New("pin numbering mode already set")
)

// PinSet is an ordered list of pin identifiers.
// The order is the energization order for forward rotation.
type PinSet []int

// Reversed returns a copy of the set in reverse order.
func (p PinSet) Reversed() PinSet {
	r := make(PinSet, len(p))
	for i, pin := range p {
		r[len(p)-1-i] = pin
	}
	return r
}

// Validate checks cardinality and that no pin repeats.
func (p PinSet) Validate() error {
	if len(p) != Phases {
		return fmt.Errorf("%w: step motor needs %d input pins, got %d", ErrConfiguration, Phases, len(p))
	}
	seen := make(map[int]struct{}, len(p))
	for _, pin := range p {
		if _, dup := seen[pin]; dup {
			return fmt.Errorf("%w: pin %d listed twice", ErrConfiguration, pin)
		}
		seen[pin] = struct{}{}
	}
	return nil
}

// Owner is something holding a pin set, typically a motor.
type Owner interface {
	Name() string
	Teardown() error
}

// Arbiter owns the process-wide GPIO namespace.
type Arbiter struct {
	mu      sync.Mutex
	driver  gpio.Driver
	mode    gpio.NumberingMode
	strict  bool
	warn    func(error)
	claimed map[int]Owner
	owners  map[Owner]PinSet
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithStrictMode makes Claim fail with ErrModeNotSet instead of
// falling back to gpio.DefaultMode.
func WithStrictMode() Option {
	return func(a *Arbiter) { a.strict = true }
}

// WithWarningHandler replaces the default warning sink (debug.Warn).
func WithWarningHandler(fn func(error)) Option {
	return func(a *Arbiter) { a.warn = fn }
}

// New creates an arbiter over driver with no numbering mode selected.
func New(driver gpio.Driver, opts ...Option) *Arbiter {
	a := &Arbiter{
		driver:  driver,
		claimed: make(map[int]Owner),
		owners:  make(map[Owner]PinSet),
		warn: func(err error) {
			debug.Warn("%v, using default settings (%s)", err, gpio.DefaultMode)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Driver returns the GPIO driver used for claimed pins.
func (a *Arbiter) Driver() gpio.Driver {
	return a.driver
}

// SetMode selects the numbering mode once. Re-applying the same mode
// is a no-op; switching to a different one fails.
func (a *Arbiter) SetMode(mode gpio.NumberingMode) error {
	if mode == gpio.Unset {
		return fmt.Errorf("%w: cannot set mode to %s", ErrConfiguration, mode)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setModeLocked(mode)
}

func (a *Arbiter) setModeLocked(mode gpio.NumberingMode) error {
	if a.mode == mode {
		return nil
	}
	if a.mode != gpio.Unset {
		return fmt.Errorf("%w: %s, cannot switch to %s", ErrModeConflict, a.mode, mode)
	}
	if err := a.driver.SetNumberingMode(mode); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	a.mode = mode
	debug.Info("Pin numbering mode: %s", mode)
	return nil
}

// Mode returns the active numbering mode (gpio.Unset before the first
// SetMode or Claim).
func (a *Arbiter) Mode() gpio.NumberingMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Claim registers pins for owner and configures them as low outputs.
// On failure nothing is registered.
func (a *Arbiter) Claim(owner Owner, pins PinSet) error {
	if err := pins.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.owners[owner]; dup {
		return fmt.Errorf("%w: %s already holds pins", ErrConfiguration, owner.Name())
	}
	var busy []int
	for _, pin := range pins {
		if _, taken := a.claimed[pin]; taken {
			busy = append(busy, pin)
		}
	}
	if len(busy) > 0 {
		return fmt.Errorf("%w: pins %v are already in use", ErrConfiguration, busy)
	}

	mode, fallback := a.mode, false
	if mode == gpio.Unset {
		if a.strict {
			return fmt.Errorf("%w: %w", ErrConfiguration, ErrModeNotSet)
		}
		mode, fallback = gpio.DefaultMode, true
	}

	for _, pin := range pins {
		if _, err := gpio.ToBCM(mode, pin); err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}
	// The driver resolves pins under its mode, so a fallback mode is
	// applied first and rolled back if the pins cannot be set up.
	if fallback {
		if err := a.driver.SetNumberingMode(mode); err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}
	if err := a.driver.ConfigureOutput(pins, gpio.Low); err != nil {
		if fallback {
			_ = a.driver.SetNumberingMode(gpio.Unset)
		}
		return fmt.Errorf("%w: setup pins %v: %v", ErrConfiguration, []int(pins), err)
	}
	if fallback {
		a.mode = mode
		a.warn(ErrModeNotSet)
		debug.Info("Pin numbering mode: %s", mode)
	}

	owned := append(PinSet(nil), pins...)
	for _, pin := range owned {
		a.claimed[pin] = owner
	}
	a.owners[owner] = owned
	debug.Info("Claimed pins %v for %s", []int(owned), owner.Name())
	return nil
}

// Release frees every pin in pins. All of them must be claimed by the
// same owner, otherwise nothing changes and ErrNotClaimed is returned.
func (a *Arbiter) Release(pins PinSet) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(pins) == 0 {
		return fmt.Errorf("%w: empty pin set", ErrNotClaimed)
	}
	var owner Owner
	for _, pin := range pins {
		o, ok := a.claimed[pin]
		if !ok {
			return fmt.Errorf("%w: pin %d", ErrNotClaimed, pin)
		}
		if owner != nil && o != owner {
			return fmt.Errorf("%w: pins %v span several owners", ErrNotClaimed, []int(pins))
		}
		owner = o
	}

	for _, pin := range pins {
		delete(a.claimed, pin)
	}
	if held := a.owners[owner]; len(held) == len(pins) {
		delete(a.owners, owner)
	} else {
		a.owners[owner] = remaining(held, pins)
	}
	debug.Info("Released pins %v from %s", []int(pins), owner.Name())

	if err := a.driver.ReleasePins(pins); err != nil {
		return fmt.Errorf("release pins %v: %w", []int(pins), err)
	}
	return nil
}

func remaining(held, released PinSet) PinSet {
	gone := make(map[int]struct{}, len(released))
	for _, pin := range released {
		gone[pin] = struct{}{}
	}
	var out PinSet
	for _, pin := range held {
		if _, ok := gone[pin]; !ok {
			out = append(out, pin)
		}
	}
	return out
}

// Claimed reports whether pin is currently held.
func (a *Arbiter) Claimed(pin int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.claimed[pin]
	return ok
}

// ClaimedPins returns all held pins in ascending order.
func (a *Arbiter) ClaimedPins() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	pins := make([]int, 0, len(a.claimed))
	for pin := range a.claimed {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// Owners returns the live owners sorted by name.
func (a *Arbiter) Owners() []Owner {
	a.mu.Lock()
	owners := make([]Owner, 0, len(a.owners))
	for o := range a.owners {
		owners = append(owners, o)
	}
	a.mu.Unlock()
	sort.Slice(owners, func(i, j int) bool { return owners[i].Name() < owners[j].Name() })
	return owners
}

// TeardownAll tears down every live owner. Each owner releases its own
// pins, so the registry lock is not held while they wait.
func (a *Arbiter) TeardownAll() error {
	var err error
	for _, o := range a.Owners() {
		err = multierr.Append(err, o.Teardown())
	}
	return err
}
