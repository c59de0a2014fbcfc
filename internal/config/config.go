package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cjeanneret/PiStep/internal/hw/gpio"
	"github.com/cjeanneret/PiStep/internal/logic/profile"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// MaxStepSeconds is the longest duration_s or pause_s a time.Duration can hold.
const MaxStepSeconds = float64(math.MaxInt64 / int64(time.Second))

// GPIOConfig selects the GPIO backend and pin numbering.
type GPIOConfig struct {
	Mock          bool   `yaml:"mock"`           // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	NumberingMode string `yaml:"numbering_mode"` // "bcm", "board", or empty (default bcm with a warning)
	StrictMode    bool   `yaml:"strict_mode"`    // refuse to claim pins before a numbering mode is set
}

// MotorConfig describes one 28BYJ-48 on a ULN2003 board.
type MotorConfig struct {
	Name         string `yaml:"name"`
	Pins         []int  `yaml:"pins"`          // IN1..IN4
	FullRotation int    `yaml:"full_rotation"` // phase cycles per turn (0 = defaults.full_rotation)
}

// ProfileConfig names a velocity shape sampled over [start, end).
type ProfileConfig struct {
	Shape string `yaml:"shape"` // constant, linear, triangle, sine
	Start int    `yaml:"start"`
	End   int    `yaml:"end"`
}

// StepKind tells what a program step does.
type StepKind int

const (
	StepRotate StepKind = iota
	StepPause
	StepFinish
)

// StepConfig is one program entry. Exactly one of Motor, PauseS or
// Finish is set.
type StepConfig struct {
	Motor     string         `yaml:"motor"`
	Angle     float64        `yaml:"angle"`
	DurationS float64        `yaml:"duration_s"`
	Radians   bool           `yaml:"radians"`
	Sync      bool           `yaml:"sync"`
	Profile   *ProfileConfig `yaml:"profile,omitempty"`

	PauseS float64 `yaml:"pause_s"` // sleep between moves
	Finish string  `yaml:"finish"`  // wait for a motor ("all" for every motor)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel      int `yaml:"debug_level"`        // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	FullRotation    int `yaml:"full_rotation"`      // default phase cycles per turn
	MinPulseDelayUs int `yaml:"min_pulse_delay_us"` // hardware floor for a pin hold
}

// Config aggregates all application configuration.
type Config struct {
	GPIO     GPIOConfig     `yaml:"gpio"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Motors   []MotorConfig  `yaml:"motors"`
	Program  []StepConfig   `yaml:"program"`
}

// ValidateConfigPath accepts only .yaml files directly inside a
// directory named configs, with no parent traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q escapes its directory", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills defaults and validates.
func (c *Config) normalize() error {
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.FullRotation == 0 {
		c.Defaults.FullRotation = profile.DefaultFullRotation
	}
	if c.Defaults.FullRotation < 0 {
		return fmt.Errorf("defaults.full_rotation must be > 0, got %d", c.Defaults.FullRotation)
	}
	if c.Defaults.MinPulseDelayUs == 0 {
		c.Defaults.MinPulseDelayUs = int(profile.MinPulseDelay / time.Microsecond)
	}
	if c.Defaults.MinPulseDelayUs < 0 {
		return fmt.Errorf("min_pulse_delay_us must be > 0, got %d", c.Defaults.MinPulseDelayUs)
	}
	if _, err := gpio.ParseMode(c.GPIO.NumberingMode); err != nil {
		return fmt.Errorf("gpio.numbering_mode: %w", err)
	}

	if len(c.Motors) == 0 {
		return fmt.Errorf("at least one motor is required")
	}
	names := make(map[string]bool, len(c.Motors))
	for i := range c.Motors {
		m := &c.Motors[i]
		if m.Name == "" {
			m.Name = fmt.Sprintf("motor%d", i+1)
		}
		if names[m.Name] {
			return fmt.Errorf("duplicate motor name %q", m.Name)
		}
		names[m.Name] = true
		if len(m.Pins) != 4 {
			return fmt.Errorf("motor %q: exactly 4 pins required, got %d", m.Name, len(m.Pins))
		}
		if m.FullRotation == 0 {
			m.FullRotation = c.Defaults.FullRotation
		}
		if m.FullRotation < 0 {
			return fmt.Errorf("motor %q: full_rotation must be > 0, got %d", m.Name, m.FullRotation)
		}
	}

	for i, s := range c.Program {
		if err := s.validate(names); err != nil {
			return fmt.Errorf("program step %d: %w", i+1, err)
		}
	}
	return nil
}

func (s StepConfig) validate(motors map[string]bool) error {
	set := 0
	if s.Motor != "" {
		set++
	}
	if s.PauseS != 0 {
		set++
	}
	if s.Finish != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of motor, pause_s or finish must be set")
	}

	switch s.Kind() {
	case StepPause:
		if s.PauseS < 0 || math.IsNaN(s.PauseS) || math.IsInf(s.PauseS, 0) {
			return fmt.Errorf("pause_s must be > 0, got %g", s.PauseS)
		}
		if s.PauseS > MaxStepSeconds {
			return fmt.Errorf("pause_s must be at most %g, got %g", MaxStepSeconds, s.PauseS)
		}
	case StepFinish:
		if s.Finish != "all" && !motors[s.Finish] {
			return fmt.Errorf("finish: unknown motor %q", s.Finish)
		}
	case StepRotate:
		if !motors[s.Motor] {
			return fmt.Errorf("unknown motor %q", s.Motor)
		}
		if math.IsNaN(s.Angle) || math.IsInf(s.Angle, 0) {
			return fmt.Errorf("angle must be finite, got %g", s.Angle)
		}
		if s.DurationS <= 0 || math.IsNaN(s.DurationS) || math.IsInf(s.DurationS, 0) {
			return fmt.Errorf("duration_s must be > 0, got %g", s.DurationS)
		}
		if s.DurationS > MaxStepSeconds {
			return fmt.Errorf("duration_s must be at most %g, got %g", MaxStepSeconds, s.DurationS)
		}
		if s.Profile != nil {
			if _, err := s.Velocity(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Kind returns what the step does.
func (s StepConfig) Kind() StepKind {
	switch {
	case s.PauseS != 0:
		return StepPause
	case s.Finish != "":
		return StepFinish
	default:
		return StepRotate
	}
}

// Duration returns the rotation duration.
func (s StepConfig) Duration() time.Duration {
	return seconds(s.DurationS)
}

// Pause returns the pause length.
func (s StepConfig) Pause() time.Duration {
	return seconds(s.PauseS)
}

// Velocity builds the step's velocity shape, nil when none is set.
func (s StepConfig) Velocity() (*profile.Velocity, error) {
	if s.Profile == nil {
		return nil, nil
	}
	return profile.Shape(s.Profile.Shape, s.Profile.Start, s.Profile.End)
}

// NumberingMode returns the parsed gpio.numbering_mode.
func (c *Config) NumberingMode() gpio.NumberingMode {
	mode, _ := gpio.ParseMode(c.GPIO.NumberingMode)
	return mode
}

// MinPulseDelay returns the hardware floor for a pin hold.
func (c *Config) MinPulseDelay() time.Duration {
	return time.Duration(c.Defaults.MinPulseDelayUs) * time.Microsecond
}

// Motor returns the motor named name.
func (c *Config) Motor(name string) (MotorConfig, bool) {
	for _, m := range c.Motors {
		if m.Name == name {
			return m, true
		}
	}
	return MotorConfig{}, false
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
