package profile

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestShape_Samples(t *testing.T) {
	cases := []struct {
		name       string
		start, end int
		want       []float64
	}{
		{"constant", 0, 4, []float64{1, 1, 1, 1}},
		{"linear", 0, 4, []float64{0.5, 1.5, 2.5, 3.5}},
		{"linear", 4, 0, []float64{3.5, 2.5, 1.5, 0.5}},
		{"linear", -2, 2, []float64{1.5, 0.5, 0.5, 1.5}},
		{"triangle", 0, 4, []float64{0.5, 1.5, 1.5, 0.5}},
		{"triangle", 10, 6, []float64{0.5, 1.5, 1.5, 0.5}},
	}
	for _, tc := range cases {
		v, err := Shape(tc.name, tc.start, tc.end)
		if err != nil {
			t.Fatalf("Shape(%s, %d, %d): %v", tc.name, tc.start, tc.end, err)
		}
		got, err := v.Samples()
		if err != nil {
			t.Fatalf("Samples: %v", err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s [%d, %d): samples = %v, want %v", tc.name, tc.start, tc.end, got, tc.want)
		}
	}
}

func TestShape_SineIsSymmetric(t *testing.T) {
	v, err := Shape("sine", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Samples()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(got)/2; i++ {
		if math.Abs(got[i]-got[len(got)-1-i]) > 1e-12 {
			t.Errorf("samples not symmetric at %d: %v vs %v", i, got[i], got[len(got)-1-i])
		}
		if got[i] <= 0 {
			t.Errorf("sample %d = %v, want > 0", i, got[i])
		}
	}
	if got[4] < got[0] {
		t.Errorf("peak %v should exceed edge %v", got[4], got[0])
	}
}

func TestShape_Invalid(t *testing.T) {
	if _, err := Shape("zigzag", 0, 10); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("unknown shape: want ErrInvalidRequest, got %v", err)
	}
	if _, err := Shape("linear", 5, 5); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty range: want ErrInvalidRequest, got %v", err)
	}
}

func TestShapeNames(t *testing.T) {
	want := []string{"constant", "linear", "sine", "triangle"}
	if got := ShapeNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ShapeNames() = %v, want %v", got, want)
	}
}

func TestShape_ConstantMatchesUniform(t *testing.T) {
	v, err := Shape("constant", 0, 64)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Compile(Request{Angle: 180, Duration: 20 * time.Second, Velocity: v})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if plan.Pulses() != 256 {
		t.Errorf("pulses = %d, want 256", plan.Pulses())
	}
	for i, seg := range plan.Segments {
		if seg.Pulses != 4 {
			t.Errorf("window %d: %d pulses, want 4", i, seg.Pulses)
		}
	}
}
