package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cjeanneret/PiStep/internal/config"
	"github.com/cjeanneret/PiStep/internal/debug"
	"github.com/cjeanneret/PiStep/internal/hw/arbiter"
	"github.com/cjeanneret/PiStep/internal/hw/gpio"
	"github.com/cjeanneret/PiStep/internal/logic/profile"
	"github.com/cjeanneret/PiStep/internal/logic/program"
	"github.com/theckman/yacspin"
	"go.uber.org/multierr"
)

// Sampling range used for -profile shapes.
const (
	cliProfileStart = 0
	cliProfileEnd   = 100
)

func main() {
	// CLI flags
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	motorName := flag.String("motor", "", "rotate this motor once instead of running the configured program")
	angle := flag.Float64("angle", 0, "rotation angle (signed, degrees unless -radians)")
	duration := flag.Float64("duration", 0, "rotation duration in seconds")
	radians := flag.Bool("radians", false, "read -angle as radians")
	shape := flag.String("profile", "", "velocity shape for -motor: constant, linear, triangle, sine")
	spin := flag.Bool("spinner", true, "show a spinner while waiting on a rotation")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := validateCLIOverrides(cfg, *motorName, *angle, *duration, *radians, *shape); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	steps := cfg.Program
	if *motorName != "" {
		steps = oneOffProgram(*motorName, *angle, *duration, *radians, *shape)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.GPIO.Mock)
	debug.Value("Numbering mode", cfg.NumberingMode())
	debug.Value("Program steps", len(steps))

	var opts []program.Option
	// Live logs and the spinner would fight over the terminal.
	if *spin && !debug.IsEnabled(debug.LevelLive) {
		opts = append(opts, program.WithWait(spinnerWait))
	}

	if err := run(ctx, cfg, steps, opts...); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

// run wires driver, arbiter and motors, executes steps and tears
// everything down on the way out.
func run(ctx context.Context, cfg *config.Config, steps []config.StepConfig, opts ...program.Option) (err error) {
	driver, err := gpio.NewDriver(cfg.GPIO.Mock)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(driver))

	var arbOpts []arbiter.Option
	if cfg.GPIO.StrictMode {
		arbOpts = append(arbOpts, arbiter.WithStrictMode())
	}
	arb := arbiter.New(driver, arbOpts...)
	if mode := cfg.NumberingMode(); mode != gpio.Unset {
		if err := arb.SetMode(mode); err != nil {
			return err
		}
	}

	runner, err := program.New(arb, cfg, opts...)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(runner.Close))

	debug.Summary("Motors")
	for _, mc := range cfg.Motors {
		debug.Info("%s: pins %v, %d cycles per turn", mc.Name, mc.Pins, mc.FullRotation)
	}

	start := time.Now()
	if err := runner.Run(ctx, steps); err != nil {
		return err
	}
	debug.Info("Done in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// validateCLIOverrides checks the one-off rotation flags. With no -motor
// every other rotation flag must be left at its zero value.
func validateCLIOverrides(cfg *config.Config, motor string, angle, duration float64, radians bool, shape string) error {
	if motor == "" {
		if angle != 0 || duration != 0 || radians || shape != "" {
			return fmt.Errorf("-angle, -duration, -radians and -profile require -motor")
		}
		return nil
	}
	if _, ok := cfg.Motor(motor); !ok {
		return fmt.Errorf("unknown motor %q", motor)
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return fmt.Errorf("angle must be finite, got %g", angle)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return fmt.Errorf("duration must be > 0 seconds, got %g", duration)
	}
	if duration > config.MaxStepSeconds {
		return fmt.Errorf("duration must be at most %g seconds, got %g", config.MaxStepSeconds, duration)
	}
	if shape != "" {
		if _, err := profile.Shape(shape, cliProfileStart, cliProfileEnd); err != nil {
			return err
		}
	}
	return nil
}

// oneOffProgram turns the CLI flags into a single synchronous rotation.
func oneOffProgram(motor string, angle, duration float64, radians bool, shape string) []config.StepConfig {
	s := config.StepConfig{
		Motor:     motor,
		Angle:     angle,
		DurationS: duration,
		Radians:   radians,
		Sync:      true,
	}
	if shape != "" {
		s.Profile = &config.ProfileConfig{Shape: shape, Start: cliProfileStart, End: cliProfileEnd}
	}
	return []config.StepConfig{s}
}

// spinnerWait shows a terminal spinner while wait runs. When the spinner
// cannot be created the wait still happens.
func spinnerWait(label string, wait func() error) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		Writer:            os.Stderr,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           label,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopMessage:       label,
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		StopFailMessage:   label,
	})
	if err != nil {
		debug.Verbose("spinner disabled: %v", err)
		return wait()
	}
	if err := spinner.Start(); err != nil {
		debug.Verbose("spinner disabled: %v", err)
		return wait()
	}
	if err := wait(); err != nil {
		_ = spinner.StopFail()
		return err
	}
	_ = spinner.Stop()
	return nil
}
