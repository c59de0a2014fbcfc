package profile

import "math"

// DefaultFullRotation is the number of phase cycles a 28BYJ-48 needs
// for one turn of the output shaft.
const DefaultFullRotation = 512

// Degrees converts angle to a non-negative magnitude in degrees.
func Degrees(angle float64, radians bool) float64 {
	a := math.Abs(angle)
	if radians {
		return a * 180 / math.Pi
	}
	return a
}

// StepsFromAngle converts an angle magnitude (in degrees) to whole
// phase cycles, rounding down.
func StepsFromAngle(degrees float64, fullRotation int) int {
	return int(math.Floor(degrees / 360 * float64(fullRotation)))
}
