package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PiStep/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/multierr"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	mu   sync.Mutex
	mode NumberingMode
	pins map[int]rpio.Pin // keyed by caller pin id, under mode
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetNumberingMode(mode NumberingMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pins) > 0 && mode != r.mode {
		return fmt.Errorf("numbering mode change with %d pins configured", len(r.pins))
	}
	debug.Verbose("GPIO numbering mode: %s", mode)
	r.mode = mode
	return nil
}

func (r *RPiDriver) ConfigureOutput(pins []int, initial Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Resolve everything first so a bad pin leaves nothing half configured.
	lines := make([]rpio.Pin, len(pins))
	for i, pin := range pins {
		line, err := ToBCM(r.mode, pin)
		if err != nil {
			return err
		}
		lines[i] = rpio.Pin(line)
	}

	for i, pin := range pins {
		debug.GPIO("ConfigureOutput", pin, initial)
		p := lines[i]
		p.Output()
		if initial == High {
			p.High()
		} else {
			p.Low()
		}
		r.pins[pin] = p
	}
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	r.mu.Lock()
	p, ok := r.pins[pin]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d is not configured as output", pin)
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// ReleasePins drives the lines low and returns them to input (safe state).
func (r *RPiDriver) ReleasePins(pins []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for _, pin := range pins {
		p, ok := r.pins[pin]
		if !ok {
			err = multierr.Append(err, fmt.Errorf("release pin %d: not configured", pin))
			continue
		}
		debug.GPIO("ReleasePin", pin, nil)
		p.Low()
		p.Input()
		delete(r.pins, pin)
	}
	return err
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	r.mu.Lock()
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Low()
		p.Input()
	}
	r.pins = make(map[int]rpio.Pin)
	r.mu.Unlock()

	return rpio.Close()
}
