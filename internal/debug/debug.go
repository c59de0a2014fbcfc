package debug

import (
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (motors claimed, program summary)
	LevelLive    = 2 // Live info (rotations started/finished)
	LevelVerbose = 3 // Verbose (compiled segments, delays)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  atomic.Int32
	logger = log.New(os.Stdout, "[PiStep] ", log.LstdFlags|log.Lmicroseconds)
	// warnings are never silenced; at level 0 they go to stderr.
	fallback = log.New(os.Stderr, "[PiStep] ", log.LstdFlags)
)

// Init initializes the debug system with a level (0-4).
// 0 = no output except warnings
// 1 = important info (motors, pins, program summary)
// 2 = live info (rotations started and finished)
// 3 = verbose (compiled profile, per-window delays)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
}

// SetOutput redirects leveled output (not the level-0 warning fallback).
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		logger.Printf("[INFO] "+format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if IsEnabled(LevelInfo) {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if IsEnabled(LevelInfo) {
		logger.Printf("[INFO]   %s = %v", name, value)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if IsEnabled(LevelLive) {
		logger.Printf("[LIVE] "+format, args...)
	}
}

// Rotation prints the start of a rotation (level 2).
func Rotation(motor string, steps int, direction string, d time.Duration) {
	if IsEnabled(LevelLive) {
		logger.Printf("[LIVE] Motor %s: %d steps (%s) over %v", motor, steps, direction, d)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if IsEnabled(LevelVerbose) {
		logger.Printf("[VERBOSE] "+format, args...)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if IsEnabled(LevelVerbose) {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Window prints one compiled profile window (level 3).
func Window(index, pulses int, delay, budget time.Duration) {
	if IsEnabled(LevelVerbose) {
		logger.Printf("[VERBOSE]   window %d: %d pulses, delay=%v, budget=%v", index, pulses, delay, budget)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if IsEnabled(LevelTrace) {
		logger.Printf("[TRACE] "+format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if IsEnabled(LevelTrace) {
		logger.Printf("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Warn prints a non-fatal warning regardless of level.
func Warn(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		logger.Printf("[WARN] "+format, args...)
		return
	}
	fallback.Printf("[WARN] "+format, args...)
}

// Error prints a debug error (level 1+).
func Error(err error) {
	if IsEnabled(LevelInfo) {
		logger.Printf("[ERROR] %v", err)
	}
}
