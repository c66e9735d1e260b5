package trainer

import (
	"fmt"
	"math/rand"
)

// Dataset is an in-memory regression dataset
type Dataset struct {
	X [][]float64
	Y []float64
}

// Len returns the number of samples
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Features returns the number of input features
func (d *Dataset) Features() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

// Validate checks that every sample has the same width and a target
func (d *Dataset) Validate() error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("dataset has %d inputs but %d targets", len(d.X), len(d.Y))
	}
	if len(d.X) == 0 {
		return fmt.Errorf("dataset is empty")
	}
	features := len(d.X[0])
	if features == 0 {
		return fmt.Errorf("dataset has no features")
	}
	for i, row := range d.X {
		if len(row) != features {
			return fmt.Errorf("sample %d has %d features, expected %d", i, len(row), features)
		}
	}
	return nil
}

// Batch copies samples [offset, offset+size) into flat row-major buffers
func (d *Dataset) Batch(offset, size int) (x, y []float64) {
	features := d.Features()
	x = make([]float64, 0, size*features)
	y = make([]float64, 0, size)
	for i := offset; i < offset+size; i++ {
		x = append(x, d.X[i]...)
		y = append(y, d.Y[i])
	}
	return x, y
}

// Synthetic draws n samples of y = x·weights + bias + noise with x ~ U(-1, 1)
func Synthetic(r *rand.Rand, n int, weights []float64, bias, noise float64) *Dataset {
	ds := &Dataset{
		X: make([][]float64, n),
		Y: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		row := make([]float64, len(weights))
		y := bias
		for j, w := range weights {
			row[j] = r.Float64()*2 - 1
			y += row[j] * w
		}
		ds.X[i] = row
		ds.Y[i] = y + r.NormFloat64()*noise
	}
	return ds
}
