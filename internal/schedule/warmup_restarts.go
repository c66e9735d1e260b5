package schedule

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidConfig is returned when schedule options are rejected at construction
	ErrInvalidConfig = errors.New("invalid schedule config")

	// ErrDegenerateCycle reports a cycle whose decay phase has no steps left
	ErrDegenerateCycle = errors.New("degenerate cycle: cycle length does not exceed warmup")
)

// notStarted is the position held before the first step
const notStarted = -1

// Options configures a WarmupRestarts schedule
type Options struct {
	FirstCycleSteps int     // steps in the first cycle
	CycleMult       float64 // growth factor of the cycle length after each restart
	MaxLR           float64 // peak rate of the first cycle
	MinLR           float64 // floor rate
	WarmupSteps     int     // linear ramp at the start of every cycle
	Gamma           float64 // peak decay per completed cycle
	LastStep        int     // initial absolute step, -1 means not started
}

// DefaultOptions returns the default options for a first cycle of the given length
func DefaultOptions(firstCycleSteps int) Options {
	return Options{
		FirstCycleSteps: firstCycleSteps,
		CycleMult:       1.0,
		MaxLR:           0.1,
		MinLR:           0.001,
		WarmupSteps:     0,
		Gamma:           1.0,
		LastStep:        notStarted,
	}
}

// Validate checks the options without building a schedule
func (o Options) Validate() error {
	if o.FirstCycleSteps <= 0 {
		return fmt.Errorf("%w: first cycle steps must be positive, got %d", ErrInvalidConfig, o.FirstCycleSteps)
	}
	if o.WarmupSteps < 0 {
		return fmt.Errorf("%w: warmup steps must not be negative, got %d", ErrInvalidConfig, o.WarmupSteps)
	}
	if o.WarmupSteps >= o.FirstCycleSteps {
		return fmt.Errorf("%w: warmup steps (%d) must be less than first cycle steps (%d)",
			ErrInvalidConfig, o.WarmupSteps, o.FirstCycleSteps)
	}
	if o.CycleMult < 0 {
		return fmt.Errorf("%w: cycle multiplier must not be negative, got %g", ErrInvalidConfig, o.CycleMult)
	}
	if o.Gamma <= 0 || o.Gamma > 1 {
		return fmt.Errorf("%w: gamma must be in (0, 1], got %g", ErrInvalidConfig, o.Gamma)
	}
	return nil
}

// State is a snapshot of the schedule position
type State struct {
	Cycle       int
	StepInCycle int
	CycleSteps  int
	PeakLR      float64
	GlobalStep  int
}

// WarmupRestarts implements cosine annealing with linear warmup and warm restarts.
// Each cycle ramps linearly from the floor to the current peak over WarmupSteps,
// then follows a half cosine back toward the floor. After every restart the peak
// is multiplied by Gamma and the decay phase is stretched by CycleMult.
//
// A cycle whose length does not exceed the warmup has no decay phase. Such a
// cycle holds the floor rate and never restarts, so the position in it keeps
// counting from its start.
//
// A WarmupRestarts is not safe for concurrent use.
type WarmupRestarts struct {
	groups  []Group
	baseLRs []float64

	firstCycleSteps int
	cycleMult       float64
	baseMaxLR       float64
	maxLR           float64
	minLR           float64
	warmupSteps     int
	gamma           float64

	curCycleSteps int
	cycle         int
	stepInCycle   int
	lastStep      int
}

// NewWarmupRestarts creates a schedule driving the given groups.
// Every group starts at MinLR, also when opts.LastStep places the schedule
// past the start: CurrentRates then reports the placed rate, and the groups
// receive it on the next Step or StepTo.
func NewWarmupRestarts(groups []Group, opts Options) (*WarmupRestarts, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &WarmupRestarts{
		groups:          groups,
		firstCycleSteps: opts.FirstCycleSteps,
		cycleMult:       opts.CycleMult,
		baseMaxLR:       opts.MaxLR,
		maxLR:           opts.MaxLR,
		minLR:           opts.MinLR,
		warmupSteps:     opts.WarmupSteps,
		gamma:           opts.Gamma,
		curCycleSteps:   opts.FirstCycleSteps,
		stepInCycle:     notStarted,
		lastStep:        notStarted,
	}

	if opts.LastStep > notStarted {
		s.place(opts.LastStep)
		s.updatePeak()
	}

	s.initLR()
	return s, nil
}

func (s *WarmupRestarts) initLR() {
	s.baseLRs = make([]float64, len(s.groups))
	for i, g := range s.groups {
		g.SetLearningRate(s.minLR)
		s.baseLRs[i] = s.minLR
	}
}

// CurrentRates returns one rate per group, computed from the current state
func (s *WarmupRestarts) CurrentRates() []float64 {
	rates := make([]float64, len(s.baseLRs))
	for i, base := range s.baseLRs {
		rates[i] = s.rate(base)
	}
	return rates
}

// LR returns the current rate of group i
func (s *WarmupRestarts) LR(i int) float64 {
	return s.rate(s.baseLRs[i])
}

func (s *WarmupRestarts) rate(base float64) float64 {
	switch {
	case s.cycle > 0 && s.cycleMult == 0:
		return base
	case s.stepInCycle == notStarted:
		return base
	case s.degenerate():
		return base
	case s.stepInCycle < s.warmupSteps:
		return base + (s.maxLR-base)*float64(s.stepInCycle)/float64(s.warmupSteps)
	}

	decaySteps := s.curCycleSteps - s.warmupSteps
	progress := float64(s.stepInCycle-s.warmupSteps) / float64(decaySteps)
	return base + (s.maxLR-base)*(1+math.Cos(math.Pi*progress))/2
}

// Step advances the schedule by one step and updates every group
func (s *WarmupRestarts) Step() {
	s.lastStep++
	s.stepInCycle++
	if s.stepInCycle >= s.curCycleSteps && !s.degenerate() {
		s.cycle++
		s.stepInCycle -= s.curCycleSteps
		s.curCycleSteps = s.nextCycleSteps(s.curCycleSteps)
	}
	s.apply()
}

// StepTo moves the schedule to an absolute step and updates every group.
// The position is derived from whole cycle lengths, so resuming at a step
// lands in the same place as stepping there one at a time.
func (s *WarmupRestarts) StepTo(step int) {
	s.place(step)
	s.apply()
}

func (s *WarmupRestarts) place(step int) {
	if step < notStarted {
		step = notStarted
	}
	s.lastStep = step

	if step < s.firstCycleSteps {
		s.cycle = 0
		s.curCycleSteps = s.firstCycleSteps
		s.stepInCycle = step
		return
	}

	if s.cycleMult == 1 {
		s.cycle = step / s.firstCycleSteps
		s.stepInCycle = step % s.firstCycleSteps
		s.curCycleSteps = s.firstCycleSteps
		return
	}

	cycle, start, length := 0, 0, s.firstCycleSteps
	for step >= start+length && length > s.warmupSteps {
		start += length
		length = s.nextCycleSteps(length)
		cycle++
	}
	s.cycle = cycle
	s.stepInCycle = step - start
	s.curCycleSteps = length
}

// nextCycleSteps stretches the decay phase of a cycle, keeping the warmup fixed
func (s *WarmupRestarts) nextCycleSteps(steps int) int {
	return int(float64(steps-s.warmupSteps)*s.cycleMult) + s.warmupSteps
}

func (s *WarmupRestarts) updatePeak() {
	s.maxLR = s.baseMaxLR * math.Pow(s.gamma, float64(s.cycle))
}

func (s *WarmupRestarts) apply() {
	s.updatePeak()
	for i, g := range s.groups {
		g.SetLearningRate(s.rate(s.baseLRs[i]))
	}
}

// degenerate reports whether the current cycle has no decay phase
func (s *WarmupRestarts) degenerate() bool {
	return s.curCycleSteps-s.warmupSteps <= 0
}

// Check reports ErrDegenerateCycle when the current cycle has no decay phase
func (s *WarmupRestarts) Check() error {
	if s.degenerate() {
		return fmt.Errorf("%w: cycle %d has %d steps with %d warmup steps",
			ErrDegenerateCycle, s.cycle, s.curCycleSteps, s.warmupSteps)
	}
	return nil
}

// GlobalStep returns the absolute step, -1 before the first step
func (s *WarmupRestarts) GlobalStep() int {
	return s.lastStep
}

// State returns a snapshot of the schedule position
func (s *WarmupRestarts) State() State {
	return State{
		Cycle:       s.cycle,
		StepInCycle: s.stepInCycle,
		CycleSteps:  s.curCycleSteps,
		PeakLR:      s.maxLR,
		GlobalStep:  s.lastStep,
	}
}
