package labels

import (
	"testing"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

func TestOneHot(t *testing.T) {
	tests := []struct {
		name      string
		labels    []int
		classes   int
		smoothing float64
		expected  []float64
	}{
		{"hard", []int{0, 2}, 3, 0, []float64{1, 0, 0, 0, 0, 1}},
		{"smoothed", []int{1}, 3, 0.2, []float64{0.1, 0.8, 0.1}},
		{"binary", []int{1, 0}, 2, 0.1, []float64{0.1, 0.9, 0.9, 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := OneHot(tt.labels, tt.classes, tt.smoothing)
			if err != nil {
				t.Fatalf("OneHot returned error: %v", err)
			}

			shape := out.Shape()
			if shape[0] != len(tt.labels) || shape[1] != tt.classes {
				t.Errorf("Expected shape (%d, %d), got %v", len(tt.labels), tt.classes, shape)
			}

			data := out.Data().([]float64)
			if !floats.EqualApprox(data, tt.expected, 1e-12) {
				t.Errorf("Expected %v, got %v", tt.expected, data)
			}

			// every row is still a distribution
			for r := 0; r < len(tt.labels); r++ {
				row := data[r*tt.classes : (r+1)*tt.classes]
				if sum := floats.Sum(row); sum < 1-1e-12 || sum > 1+1e-12 {
					t.Errorf("Row %d sums to %g", r, sum)
				}
			}
		})
	}
}

func TestOneHotErrors(t *testing.T) {
	tests := []struct {
		name      string
		labels    []int
		classes   int
		smoothing float64
	}{
		{"smoothing one", []int{0}, 3, 1},
		{"negative smoothing", []int{0}, 3, -0.1},
		{"label out of range", []int{3}, 3, 0},
		{"negative label", []int{-1}, 3, 0},
		{"one class", []int{0}, 1, 0},
		{"empty", nil, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OneHot(tt.labels, tt.classes, tt.smoothing); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestSmooth(t *testing.T) {
	in := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float64{0, 1, 0, 1, 0, 0}))

	out, err := Smooth(in, 0.1)
	if err != nil {
		t.Fatalf("Smooth returned error: %v", err)
	}

	expected := []float64{0.1, 0.9, 0.1, 0.9, 0.1, 0.1}
	if got := out.Data().([]float64); !floats.EqualApprox(got, expected, 1e-12) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if src := in.Data().([]float64); src[1] != 1 {
		t.Error("Smooth modified its input")
	}
}

func TestSmoothErrors(t *testing.T) {
	vec := tensor.New(tensor.WithShape(3), tensor.WithBacking([]float64{0, 1, 0}))
	if _, err := Smooth(vec, 0.1); err == nil {
		t.Error("Expected error for 1-D input")
	}

	ints := tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]int{0, 1}))
	if _, err := Smooth(ints, 0.1); err == nil {
		t.Error("Expected error for int data")
	}

	mat := tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{0, 1}))
	if _, err := Smooth(mat, 1.5); err == nil {
		t.Error("Expected error for smoothing >= 1")
	}
}
