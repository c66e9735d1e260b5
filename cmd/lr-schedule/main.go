package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/thyrook/trainkit/internal/logger"
	"github.com/thyrook/trainkit/internal/schedule"
)

type rateHolder struct {
	lr float64
}

func (r *rateHolder) SetLearningRate(lr float64) {
	r.lr = lr
}

func main() {
	var (
		kind       = flag.String("kind", string(schedule.KindWarmupRestarts), "Schedule: cosine_warmup_restarts, step, exponential")
		steps      = flag.Int("steps", 200, "Number of steps to print")
		firstCycle = flag.Int("first-cycle", 50, "Steps in the first cycle")
		cycleMult  = flag.Float64("cycle-mult", 1.0, "Cycle length multiplier after each restart")
		maxLR      = flag.Float64("max-lr", 0.1, "Peak learning rate")
		minLR      = flag.Float64("min-lr", 0.001, "Floor learning rate")
		warmup     = flag.Int("warmup", 0, "Warmup steps per cycle")
		gamma      = flag.Float64("gamma", 1.0, "Peak decay per cycle")
		from       = flag.Int("from", -1, "Jump to this step before printing")
		quiet      = flag.Bool("quiet", false, "Print only the summary")
		level      = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	log, err := logger.New(*level, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := schedule.Options{
		FirstCycleSteps: *firstCycle,
		CycleMult:       *cycleMult,
		MaxLR:           *maxLR,
		MinLR:           *minLR,
		WarmupSteps:     *warmup,
		Gamma:           *gamma,
		LastStep:        -1,
	}

	group := &rateHolder{}
	sched, err := schedule.New(schedule.Kind(*kind), []schedule.Group{group}, opts)
	if err != nil {
		log.Error("Failed to create schedule", zap.Error(err))
		os.Exit(1)
	}

	if *from >= 0 {
		sched.StepTo(*from)
		log.Info("Jumped", zap.Int("step", *from), zap.Float64("lr", group.lr))
	}

	rates := make([]float64, 0, *steps)
	warned := false
	for i := 0; i < *steps; i++ {
		sched.Step()
		if ws, ok := sched.(*schedule.WarmupRestarts); ok && !warned {
			if err := ws.Check(); err != nil {
				log.Warn("Schedule holds the floor rate", zap.Error(err))
				warned = true
			}
		}
		rates = append(rates, group.lr)

		if !*quiet {
			line := fmt.Sprintf("%6d  %.8f", sched.GlobalStep(), group.lr)
			if ws, ok := sched.(*schedule.WarmupRestarts); ok {
				st := ws.State()
				line += fmt.Sprintf("  cycle=%d pos=%d/%d", st.Cycle, st.StepInCycle, st.CycleSteps)
			}
			fmt.Println(line)
		}
	}

	if len(rates) == 0 {
		return
	}

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Steps:  %d\n", len(rates))
	fmt.Printf("  Min LR: %.8f (step %d)\n", floats.Min(rates), floats.MinIdx(rates))
	fmt.Printf("  Max LR: %.8f (step %d)\n", floats.Max(rates), floats.MaxIdx(rates))
	fmt.Printf("  Mean:   %.8f\n", floats.Sum(rates)/float64(len(rates)))
}
