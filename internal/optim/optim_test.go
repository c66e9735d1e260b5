package optim

import (
	"math"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func testParams(g *gorgonia.ExprGraph) []NamedParam {
	return []NamedParam{
		{Name: "fc.weight", Node: gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(3, 2), gorgonia.WithName("fc.weight"), gorgonia.WithInit(gorgonia.Zeroes()))},
		{Name: "fc.bias", Node: gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(1, 2), gorgonia.WithName("fc.bias"), gorgonia.WithInit(gorgonia.Zeroes()))},
		{Name: "norm.scale", Node: gorgonia.NewVector(g, tensor.Float64, gorgonia.WithShape(2), gorgonia.WithName("norm.scale"), gorgonia.WithInit(gorgonia.Ones()))},
		{Name: "embed.weight", Node: gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(4, 2), gorgonia.WithName("embed.weight"), gorgonia.WithInit(gorgonia.Zeroes()))},
		{Name: "frozen.weight", Node: gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(2, 2), gorgonia.WithName("frozen.weight"), gorgonia.WithInit(gorgonia.Zeroes())), Frozen: true},
	}
}

func names(nodes gorgonia.Nodes) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func TestSplitWeightDecay(t *testing.T) {
	g := gorgonia.NewGraph()
	groups := SplitWeightDecay(testParams(g), 1e-4, []string{"embed.weight"})

	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}

	noDecay, decay := groups[0], groups[1]
	if noDecay.Name != NoDecayGroup || decay.Name != DecayGroup {
		t.Errorf("Unexpected group order: %s, %s", noDecay.Name, decay.Name)
	}
	if noDecay.WeightDecay != 0 {
		t.Errorf("Expected no weight decay, got %g", noDecay.WeightDecay)
	}
	if decay.WeightDecay != 1e-4 {
		t.Errorf("Expected weight decay 1e-4, got %g", decay.WeightDecay)
	}

	wantNoDecay := []string{"fc.bias", "norm.scale", "embed.weight"}
	got := names(noDecay.Params)
	if len(got) != len(wantNoDecay) {
		t.Fatalf("Expected no-decay params %v, got %v", wantNoDecay, got)
	}
	for i := range wantNoDecay {
		if got[i] != wantNoDecay[i] {
			t.Errorf("No-decay param %d: expected %s, got %s", i, wantNoDecay[i], got[i])
		}
	}

	if got := names(decay.Params); len(got) != 1 || got[0] != "fc.weight" {
		t.Errorf("Expected decay params [fc.weight], got %v", got)
	}
}

func TestSingleGroupAndTrainable(t *testing.T) {
	g := gorgonia.NewGraph()
	params := testParams(g)

	groups := SingleGroup(params, 0.01)
	if len(groups) != 1 || len(groups[0].Params) != 4 {
		t.Fatalf("Expected one group of 4 params, got %d groups", len(groups))
	}
	if n := len(Trainable(params)); n != 4 {
		t.Errorf("Expected 4 trainable params, got %d", n)
	}
}

func TestSGDFollowsGroupRate(t *testing.T) {
	g := gorgonia.NewGraph()
	w := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(1, 1), gorgonia.WithName("w"), gorgonia.WithInit(gorgonia.Ones()))
	cost := gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.Square(w))))

	if _, err := gorgonia.Grad(cost, w); err != nil {
		t.Fatalf("Failed to compute gradients: %v", err)
	}
	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(w))
	defer vm.Close()

	groups := []*ParamGroup{{Name: "all", Params: gorgonia.Nodes{w}}}
	sgd := NewSGD(groups, SGDConfig{})

	run := func(lr float64) float64 {
		groups[0].SetLearningRate(lr)
		if err := vm.RunAll(); err != nil {
			t.Fatalf("RunAll failed: %v", err)
		}
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		vm.Reset()
		return w.Value().Data().([]float64)[0]
	}

	// d/dw w^2 = 2 at w = 1
	if got := run(0.1); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Expected w = 0.8, got %g", got)
	}
	if got := run(0); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Expected w unchanged at 0.8 with zero rate, got %g", got)
	}
}
