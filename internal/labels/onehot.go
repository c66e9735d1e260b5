package labels

import (
	"fmt"

	"gorgonia.org/tensor"
)

func checkSmoothing(smoothing float64) error {
	if smoothing < 0 || smoothing >= 1 {
		return fmt.Errorf("smoothing must be in [0, 1), got %g", smoothing)
	}
	return nil
}

// OneHot encodes class indices as an (n, classes) matrix with label smoothing.
// The true class gets 1-smoothing and every other class smoothing/(classes-1).
func OneHot(labels []int, classes int, smoothing float64) (*tensor.Dense, error) {
	if err := checkSmoothing(smoothing); err != nil {
		return nil, err
	}
	if classes < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", classes)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels")
	}

	confidence := 1.0 - smoothing
	off := smoothing / float64(classes-1)

	data := make([]float64, len(labels)*classes)
	for i := range data {
		data[i] = off
	}
	for i, label := range labels {
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("label %d at index %d out of range [0, %d)", label, i, classes)
		}
		data[i*classes+label] = confidence
	}

	return tensor.New(
		tensor.WithShape(len(labels), classes),
		tensor.WithBacking(data),
	), nil
}

// Smooth applies label smoothing to a matrix that is already one-hot.
// Entries equal to 1 become 1-smoothing, all others become smoothing.
// The input is left untouched.
func Smooth(t *tensor.Dense, smoothing float64) (*tensor.Dense, error) {
	if err := checkSmoothing(smoothing); err != nil {
		return nil, err
	}
	if t.Dims() != 2 {
		return nil, fmt.Errorf("expected a 2-D one-hot matrix, got shape %v", t.Shape())
	}
	src, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("expected float64 data, got %T", t.Data())
	}

	confidence := 1.0 - smoothing
	data := make([]float64, len(src))
	for i, v := range src {
		if v == 1.0 {
			data[i] = confidence
		} else {
			data[i] = smoothing
		}
	}

	shape := t.Shape()
	return tensor.New(
		tensor.WithShape(shape[0], shape[1]),
		tensor.WithBacking(data),
	), nil
}
