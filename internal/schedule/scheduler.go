package schedule

import (
	"fmt"
	"math"
)

// Group is a parameter group whose learning rate a scheduler writes
type Group interface {
	SetLearningRate(lr float64)
}

// Scheduler defines the interface for learning rate scheduling
type Scheduler interface {
	Step()
	StepTo(step int)
	CurrentRates() []float64
	GlobalStep() int
}

// Kind names a scheduler implementation
type Kind string

const (
	KindWarmupRestarts Kind = "cosine_warmup_restarts"
	KindStep           Kind = "step"
	KindExponential    Kind = "exponential"
)

// New creates a scheduler of the given kind.
// Step and exponential decay reuse the options: MaxLR is the base rate, Gamma
// the decay factor, and FirstCycleSteps the interval between step decays.
func New(kind Kind, groups []Group, opts Options) (Scheduler, error) {
	switch kind {
	case KindWarmupRestarts, "":
		return NewWarmupRestarts(groups, opts)
	case KindStep:
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		return NewStepDecay(groups, opts.MaxLR, opts.Gamma, opts.FirstCycleSteps), nil
	case KindExponential:
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		return NewExponential(groups, opts.MaxLR, opts.Gamma), nil
	default:
		return nil, fmt.Errorf("%w: unknown scheduler kind %q", ErrInvalidConfig, kind)
	}
}

// decaySchedule is the shared state of the closed-form decays
type decaySchedule struct {
	groups      []Group
	currentStep int
	lrAt        func(step int) float64
}

func (d *decaySchedule) init() {
	d.currentStep = 0
	d.apply()
}

// Step advances the scheduler by one step
func (d *decaySchedule) Step() {
	d.currentStep++
	d.apply()
}

// StepTo moves the scheduler to an absolute step
func (d *decaySchedule) StepTo(step int) {
	if step < 0 {
		step = 0
	}
	d.currentStep = step
	d.apply()
}

// CurrentRates returns the rate of every group
func (d *decaySchedule) CurrentRates() []float64 {
	rates := make([]float64, len(d.groups))
	lr := d.lrAt(d.currentStep)
	for i := range rates {
		rates[i] = lr
	}
	return rates
}

// GlobalStep returns the absolute step
func (d *decaySchedule) GlobalStep() int {
	return d.currentStep
}

func (d *decaySchedule) apply() {
	lr := d.lrAt(d.currentStep)
	for _, g := range d.groups {
		g.SetLearningRate(lr)
	}
}

// StepDecay multiplies the rate by decayRate every decaySteps steps
type StepDecay struct {
	decaySchedule
	baseLR     float64
	decayRate  float64
	decaySteps int
}

// NewStepDecay creates a step-based scheduler
func NewStepDecay(groups []Group, baseLR, decayRate float64, decaySteps int) *StepDecay {
	s := &StepDecay{
		baseLR:     baseLR,
		decayRate:  decayRate,
		decaySteps: decaySteps,
	}
	s.decaySchedule = decaySchedule{groups: groups, lrAt: s.GetLR}
	s.init()
	return s
}

// GetLR returns the learning rate for a given step
func (s *StepDecay) GetLR(step int) float64 {
	numDecays := step / s.decaySteps
	return s.baseLR * math.Pow(s.decayRate, float64(numDecays))
}

// Exponential multiplies the rate by decayRate every step
type Exponential struct {
	decaySchedule
	baseLR    float64
	decayRate float64
}

// NewExponential creates an exponential scheduler
func NewExponential(groups []Group, baseLR, decayRate float64) *Exponential {
	s := &Exponential{
		baseLR:    baseLR,
		decayRate: decayRate,
	}
	s.decaySchedule = decaySchedule{groups: groups, lrAt: s.GetLR}
	s.init()
	return s
}

// GetLR returns the learning rate for a given step
func (s *Exponential) GetLR(step int) float64 {
	return s.baseLR * math.Pow(s.decayRate, float64(step))
}
