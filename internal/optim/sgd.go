package optim

import (
	"fmt"

	"gorgonia.org/gorgonia"
)

// SGDConfig holds the solver settings shared by every group
type SGDConfig struct {
	BatchSize float64
	ClipMax   float64
}

// SGD applies plain gradient descent per parameter group.
// A group's solver is rebuilt whenever its learning rate changes, so a
// scheduler can write new rates into the groups between steps.
type SGD struct {
	groups  []*ParamGroup
	config  SGDConfig
	solvers []gorgonia.Solver
	rates   []float64
}

// NewSGD creates an optimizer over the given groups
func NewSGD(groups []*ParamGroup, config SGDConfig) *SGD {
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	return &SGD{
		groups:  groups,
		config:  config,
		solvers: make([]gorgonia.Solver, len(groups)),
		rates:   make([]float64, len(groups)),
	}
}

// Groups returns the parameter groups the optimizer updates
func (o *SGD) Groups() []*ParamGroup {
	return o.groups
}

// Step applies one update to every group using the gradients bound to its nodes
func (o *SGD) Step() error {
	for i, g := range o.groups {
		if len(g.Params) == 0 {
			continue
		}
		solver := o.solverFor(i)
		if err := solver.Step(gorgonia.NodesToValueGrads(g.Params)); err != nil {
			return fmt.Errorf("failed to update group %s: %w", g.Name, err)
		}
	}
	return nil
}

func (o *SGD) solverFor(i int) gorgonia.Solver {
	g := o.groups[i]
	if o.solvers[i] != nil && o.rates[i] == g.LearningRate {
		return o.solvers[i]
	}

	opts := []gorgonia.SolverOpt{
		gorgonia.WithLearnRate(g.LearningRate),
		gorgonia.WithBatchSize(o.config.BatchSize),
	}
	if g.WeightDecay > 0 {
		opts = append(opts, gorgonia.WithL2Reg(g.WeightDecay))
	}
	if o.config.ClipMax > 0 {
		opts = append(opts, gorgonia.WithClip(o.config.ClipMax))
	}

	o.solvers[i] = gorgonia.NewVanillaSolver(opts...)
	o.rates[i] = g.LearningRate
	return o.solvers[i]
}
