package profile

import (
	"fmt"
	"math"
	"sort"
)

// shapes build a velocity function over the window range [start, end).
var shapes = map[string]func(start, end int) VelocityFunc{
	// constant speed, split into windows
	"constant": func(start, end int) VelocityFunc {
		return func(float64) float64 { return 1 }
	},
	// speed proportional to the sample position, as in f(x) = x
	"linear": func(start, end int) VelocityFunc {
		return func(x float64) float64 { return math.Abs(x) }
	},
	// ramp up to the middle of the range and back down
	"triangle": func(start, end int) VelocityFunc {
		lo, hi := float64(min(start, end)), float64(max(start, end))
		return func(x float64) float64 { return math.Min(x-lo, hi-x) }
	},
	// half sine period across the range
	"sine": func(start, end int) VelocityFunc {
		lo, span := float64(min(start, end)), math.Abs(float64(end-start))
		return func(x float64) float64 { return math.Sin(math.Pi * (x - lo) / span) }
	},
}

// Shape returns the named velocity shape sampled over [start, end).
func Shape(name string, start, end int) (*Velocity, error) {
	build, ok := shapes[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown velocity shape %q (known: %v)", ErrInvalidRequest, name, ShapeNames())
	}
	if start == end {
		return nil, fmt.Errorf("%w: velocity range [%d, %d) is empty", ErrInvalidRequest, start, end)
	}
	return &Velocity{Func: build(start, end), Start: start, End: end}, nil
}

// ShapeNames lists the known shapes in sorted order.
func ShapeNames() []string {
	names := make([]string, 0, len(shapes))
	for name := range shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
