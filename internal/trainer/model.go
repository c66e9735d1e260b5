package trainer

import (
	"fmt"

	"github.com/thyrook/trainkit/internal/optim"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	weightName = "linear.weight"
	biasName   = "linear.bias"
)

// LinearModel is y = xW + b trained with mean squared error
type LinearModel struct {
	g         *gorgonia.ExprGraph
	x         *gorgonia.Node
	y         *gorgonia.Node
	w         *gorgonia.Node
	b         *gorgonia.Node
	loss      *gorgonia.Node
	vm        gorgonia.VM
	batchSize int
	features  int
}

// NewLinearModel builds the graph for a fixed batch size.
// init fills the weight matrix; nil means zeros.
func NewLinearModel(features, batchSize int, init gorgonia.InitWFn) (*LinearModel, error) {
	if features <= 0 || batchSize <= 0 {
		return nil, fmt.Errorf("invalid model size: %d features, batch %d", features, batchSize)
	}
	if init == nil {
		init = gorgonia.Zeroes()
	}

	g := gorgonia.NewGraph()
	m := &LinearModel{g: g, batchSize: batchSize, features: features}

	m.x = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batchSize, features), gorgonia.WithName("x"))
	m.y = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batchSize, 1), gorgonia.WithName("y"))
	m.w = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(features, 1), gorgonia.WithName(weightName), gorgonia.WithInit(init))
	m.b = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(1, 1), gorgonia.WithName(biasName), gorgonia.WithInit(gorgonia.Zeroes()))

	xw, err := gorgonia.Mul(m.x, m.w)
	if err != nil {
		return nil, fmt.Errorf("failed to build projection: %w", err)
	}
	pred, err := gorgonia.BroadcastAdd(xw, m.b, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("failed to build bias: %w", err)
	}
	diff, err := gorgonia.Sub(pred, m.y)
	if err != nil {
		return nil, fmt.Errorf("failed to build residual: %w", err)
	}
	sq, err := gorgonia.Square(diff)
	if err != nil {
		return nil, fmt.Errorf("failed to build square: %w", err)
	}
	if m.loss, err = gorgonia.Mean(sq); err != nil {
		return nil, fmt.Errorf("failed to build loss: %w", err)
	}

	if _, err := gorgonia.Grad(m.loss, m.w, m.b); err != nil {
		return nil, fmt.Errorf("failed to compute gradients: %w", err)
	}

	m.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(m.w, m.b))
	return m, nil
}

// Params returns the learnable parameters by name
func (m *LinearModel) Params() []optim.NamedParam {
	return []optim.NamedParam{
		{Name: weightName, Node: m.w},
		{Name: biasName, Node: m.b},
	}
}

// BatchSize returns the batch size the graph was built for
func (m *LinearModel) BatchSize() int {
	return m.batchSize
}

// Forward runs the forward and backward pass on one batch and returns the loss.
// Gradients stay bound to the parameters until Reset.
func (m *LinearModel) Forward(x, y []float64) (float64, error) {
	if len(y) != m.batchSize || len(x) != m.batchSize*m.features {
		return 0, fmt.Errorf("batch size mismatch: got %d targets, model expects %d", len(y), m.batchSize)
	}

	if err := gorgonia.Let(m.x, tensor.New(tensor.WithShape(m.batchSize, m.features), tensor.WithBacking(x))); err != nil {
		return 0, fmt.Errorf("failed to set input: %w", err)
	}
	if err := gorgonia.Let(m.y, tensor.New(tensor.WithShape(m.batchSize, 1), tensor.WithBacking(y))); err != nil {
		return 0, fmt.Errorf("failed to set target: %w", err)
	}

	if err := m.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("failed to run forward/backward: %w", err)
	}

	lossValue := m.loss.Value()
	if lossValue == nil {
		return 0, fmt.Errorf("loss value is nil")
	}

	switch v := lossValue.Data().(type) {
	case float64:
		return v, nil
	case []float64:
		if len(v) > 0 {
			return v[0], nil
		}
		return 0, fmt.Errorf("loss value array is empty")
	default:
		return 0, fmt.Errorf("unexpected loss value type: %T", v)
	}
}

// Reset clears the machine for the next batch
func (m *LinearModel) Reset() {
	m.vm.Reset()
}

// Weights returns copies of the current weights and bias
func (m *LinearModel) Weights() ([]float64, float64) {
	w := append([]float64(nil), m.w.Value().Data().([]float64)...)
	b := m.b.Value().Data().([]float64)[0]
	return w, b
}

// Evaluate returns the mean squared error over the whole dataset
func (m *LinearModel) Evaluate(ds *Dataset) float64 {
	w, b := m.Weights()
	var sum float64
	for i, row := range ds.X {
		r := floats.Dot(row, w) + b - ds.Y[i]
		sum += r * r
	}
	return sum / float64(ds.Len())
}

// Close releases the machine
func (m *LinearModel) Close() error {
	if m.vm != nil {
		return m.vm.Close()
	}
	return nil
}
