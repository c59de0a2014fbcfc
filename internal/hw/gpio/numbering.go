package gpio

import (
	"fmt"
	"strings"
)

// NumberingMode selects how pin identifiers are interpreted.
type NumberingMode int

const (
	// Unset means no mode has been chosen yet.
	Unset NumberingMode = iota
	// BCM uses Broadcom SoC channel numbers (GPIO6, GPIO13, ...).
	BCM
	// Board uses physical pin positions on the 40-pin header.
	Board
)

// DefaultMode is applied when a pin is claimed before any mode was set.
const DefaultMode = BCM

const maxBCMLine = 27

// boardToBCM maps physical header positions to BCM lines.
// Power and ground positions are absent.
var boardToBCM = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15, 11: 17, 12: 18, 13: 27,
	15: 22, 16: 23, 18: 24, 19: 10, 21: 9, 22: 25, 23: 11, 24: 8,
	26: 7, 27: 0, 28: 1, 29: 5, 31: 6, 32: 12, 33: 13, 35: 19,
	36: 16, 37: 26, 38: 20, 40: 21,
}

func (m NumberingMode) String() string {
	switch m {
	case BCM:
		return "bcm"
	case Board:
		return "board"
	default:
		return "unset"
	}
}

// ParseMode converts a config value into a NumberingMode.
// An empty string yields Unset.
func ParseMode(s string) (NumberingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Unset, nil
	case "bcm":
		return BCM, nil
	case "board":
		return Board, nil
	default:
		return Unset, fmt.Errorf("unknown numbering mode %q (want bcm or board)", s)
	}
}

// ToBCM resolves pin under mode to a BCM line number.
func ToBCM(mode NumberingMode, pin int) (int, error) {
	switch mode {
	case BCM:
		if pin < 0 || pin > maxBCMLine {
			return 0, fmt.Errorf("bcm pin %d out of range 0-%d", pin, maxBCMLine)
		}
		return pin, nil
	case Board:
		line, ok := boardToBCM[pin]
		if !ok {
			return 0, fmt.Errorf("board pin %d is not a GPIO line", pin)
		}
		return line, nil
	default:
		return 0, fmt.Errorf("numbering mode not set")
	}
}
