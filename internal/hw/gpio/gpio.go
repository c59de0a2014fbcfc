package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PiStep/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Driver defines the abstract interface for driving output lines.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
//
// Implementations must be safe for concurrent use: several motors
// pulse their own pins from separate goroutines.
//
// SetNumberingMode(Unset) clears the mode while no pin is configured.
type Driver interface {
	SetNumberingMode(mode NumberingMode) error
	ConfigureOutput(pins []int, initial Level) error
	WritePin(pin int, level Level) error
	ReleasePins(pins []int) error
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

// MockDriver keeps pin levels in memory and counts writes.
// Used for development on PC or testing.
type MockDriver struct {
	mu         sync.Mutex
	mode       NumberingMode
	outputs    map[int]Level
	writes     int
	modeWrites int
}

// NewMockDriver returns an empty mock with no numbering mode selected.
func NewMockDriver() *MockDriver {
	return &MockDriver{outputs: make(map[int]Level)}
}

func (m *MockDriver) SetNumberingMode(mode NumberingMode) error {
	debug.Trace("GPIO numbering mode (mock): %s", mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.modeWrites++
	return nil
}

func (m *MockDriver) ConfigureOutput(pins []int, initial Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pin := range pins {
		debug.GPIO("ConfigureOutput", pin, initial)
		m.outputs[pin] = initial
	}
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outputs[pin]; !ok {
		return fmt.Errorf("pin %d is not configured as output", pin)
	}
	m.outputs[pin] = level
	m.writes++
	return nil
}

func (m *MockDriver) ReleasePins(pins []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pin := range pins {
		debug.GPIO("ReleasePin", pin, nil)
		delete(m.outputs, pin)
	}
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

// Writes returns the number of successful WritePin calls so far.
func (m *MockDriver) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Mode returns the numbering mode last applied and how many times it was set.
func (m *MockDriver) Mode() (NumberingMode, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode, m.modeWrites
}

// Configured reports whether pin is currently an output.
func (m *MockDriver) Configured(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.outputs[pin]
	return ok
}
