package optim

import (
	"strings"

	"gorgonia.org/gorgonia"
)

const (
	// NoDecayGroup holds biases, 1-D parameters and skipped names
	NoDecayGroup = "no_decay"

	// DecayGroup holds every other trainable parameter
	DecayGroup = "decay"
)

// NamedParam is a learnable node with the name it is saved under
type NamedParam struct {
	Name   string
	Node   *gorgonia.Node
	Frozen bool
}

// ParamGroup is a set of parameters sharing a learning rate and weight decay
type ParamGroup struct {
	Name         string
	Params       gorgonia.Nodes
	LearningRate float64
	WeightDecay  float64
}

// SetLearningRate sets the group's learning rate
func (g *ParamGroup) SetLearningRate(lr float64) {
	g.LearningRate = lr
}

// SplitWeightDecay separates params into a group without weight decay
// (1-D tensors, biases, and names in skip) and a group with it.
// Frozen params are left out of both.
func SplitWeightDecay(params []NamedParam, weightDecay float64, skip []string) []*ParamGroup {
	skipSet := make(map[string]struct{}, len(skip))
	for _, name := range skip {
		skipSet[name] = struct{}{}
	}

	noDecay := &ParamGroup{Name: NoDecayGroup}
	decay := &ParamGroup{Name: DecayGroup, WeightDecay: weightDecay}

	for _, p := range params {
		if p.Frozen {
			continue
		}
		_, skipped := skipSet[p.Name]
		if p.Node.Dims() == 1 || strings.HasSuffix(p.Name, ".bias") || skipped {
			noDecay.Params = append(noDecay.Params, p.Node)
		} else {
			decay.Params = append(decay.Params, p.Node)
		}
	}

	return []*ParamGroup{noDecay, decay}
}

// SingleGroup puts every trainable param into one group with the given decay
func SingleGroup(params []NamedParam, weightDecay float64) []*ParamGroup {
	g := &ParamGroup{Name: DecayGroup, WeightDecay: weightDecay}
	for _, p := range params {
		if !p.Frozen {
			g.Params = append(g.Params, p.Node)
		}
	}
	return []*ParamGroup{g}
}

// Trainable returns the nodes of all params that are not frozen
func Trainable(params []NamedParam) gorgonia.Nodes {
	var nodes gorgonia.Nodes
	for _, p := range params {
		if !p.Frozen {
			nodes = append(nodes, p.Node)
		}
	}
	return nodes
}
