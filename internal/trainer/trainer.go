package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thyrook/trainkit/internal/config"
	"github.com/thyrook/trainkit/internal/logger"
	"github.com/thyrook/trainkit/internal/optim"
	"github.com/thyrook/trainkit/internal/schedule"
	"github.com/thyrook/trainkit/internal/storage"
	"github.com/thyrook/trainkit/internal/weights"
	"go.uber.org/zap"
	"gorgonia.org/gorgonia"
)

// StepMetrics records one optimizer step
type StepMetrics struct {
	Step         int
	Epoch        int
	Loss         float64
	LearningRate float64
}

// EpochMetrics tracks training progress per epoch
type EpochMetrics struct {
	Epoch        int
	Loss         float64
	LearningRate float64
	Duration     time.Duration
	Steps        int
}

// Options carries the optional collaborators of a Trainer
type Options struct {
	Logger   *zap.Logger
	Store    *storage.CheckpointStore
	Init     gorgonia.InitWFn
	OnEpoch  func(EpochMetrics)
	Features int
}

// Trainer manages the training process
type Trainer struct {
	model     *LinearModel
	config    *config.Config
	groups    []*optim.ParamGroup
	optimizer *optim.SGD
	scheduler schedule.Scheduler
	store     *storage.CheckpointStore
	logger    *zap.Logger
	onEpoch   func(EpochMetrics)

	steps       []StepMetrics
	epochs      []EpochMetrics
	startStep   int
	warnedCycle bool
}

// NewTrainer builds the model, parameter groups and scheduler described by cfg
func NewTrainer(cfg *config.Config, opts Options) (*Trainer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	model, err := NewLinearModel(opts.Features, cfg.Training.BatchSize, opts.Init)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	var groups []*optim.ParamGroup
	if cfg.Optimizer.SplitDecay {
		groups = optim.SplitWeightDecay(model.Params(), cfg.Optimizer.WeightDecay, cfg.Optimizer.NoDecay)
	} else {
		groups = optim.SingleGroup(model.Params(), cfg.Optimizer.WeightDecay)
	}

	targets := make([]schedule.Group, len(groups))
	for i, g := range groups {
		targets[i] = g
	}
	scheduler, err := schedule.New(schedule.Kind(cfg.Schedule.Kind), targets, cfg.Schedule.Options())
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	t := &Trainer{
		model:     model,
		config:    cfg,
		groups:    groups,
		optimizer: optim.NewSGD(groups, optim.SGDConfig{ClipMax: cfg.Optimizer.ClipMax}),
		scheduler: scheduler,
		store:     opts.Store,
		logger:    logger.OrNop(opts.Logger),
		onEpoch:   opts.OnEpoch,
	}

	if path := cfg.Training.WarmStartPath; path != "" {
		if err := t.WarmStart(path); err != nil {
			model.Close()
			return nil, err
		}
	}
	return t, nil
}

// Restore positions the trainer after the latest checkpoint of the run and
// loads the weights saved with it. It returns false if there is none.
func (t *Trainer) Restore() (bool, error) {
	if t.store == nil {
		return false, nil
	}

	cp, err := t.store.Latest(t.config.Training.Run)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if cp.WeightsPath != "" {
		if _, err := weights.LoadMatching(cp.WeightsPath, t.model.Params()); err != nil {
			return false, fmt.Errorf("failed to load checkpoint weights: %w", err)
		}
	}

	t.scheduler.StepTo(cp.GlobalStep)
	t.startStep = cp.GlobalStep + 1

	t.logger.Info("Resumed from checkpoint",
		zap.String("run", cp.Run),
		zap.Int("global_step", cp.GlobalStep),
		zap.Float64s("rates", t.scheduler.CurrentRates()),
	)
	return true, nil
}

// WarmStart loads the weights in path whose names match the model
func (t *Trainer) WarmStart(path string) error {
	loaded, err := weights.LoadMatching(path, t.model.Params())
	if err != nil {
		return fmt.Errorf("failed to warm start: %w", err)
	}
	t.logger.Info("Warm start", zap.String("path", path), zap.Strings("loaded", loaded))
	return nil
}

// Train runs the configured number of epochs over ds.
// The scheduler is stepped before every optimizer step, so step k trains
// with the rate of schedule step k.
func (t *Trainer) Train(ctx context.Context, ds *Dataset) error {
	if ds == nil {
		return fmt.Errorf("dataset is nil")
	}
	if err := ds.Validate(); err != nil {
		return err
	}

	batchSize := t.model.BatchSize()
	batchesPerEpoch := ds.Len() / batchSize
	if batchesPerEpoch == 0 {
		return fmt.Errorf("dataset has %d samples, fewer than batch size %d", ds.Len(), batchSize)
	}

	totalSteps := t.config.Training.Epochs * batchesPerEpoch
	if t.startStep >= totalSteps {
		t.logger.Info("Nothing to train", zap.Int("start_step", t.startStep), zap.Int("total_steps", totalSteps))
		return nil
	}

	t.logger.Info("Starting training",
		zap.Int("samples", ds.Len()),
		zap.Int("epochs", t.config.Training.Epochs),
		zap.Int("batch_size", batchSize),
		zap.Int("start_step", t.startStep),
		zap.String("schedule", t.config.Schedule.Kind),
	)

	step := t.startStep
	for epoch := step / batchesPerEpoch; epoch < t.config.Training.Epochs; epoch++ {
		startTime := time.Now()
		var epochLoss float64
		var epochSteps int

		for batch := step % batchesPerEpoch; batch < batchesPerEpoch; batch++ {
			if err := ctx.Err(); err != nil {
				if step > t.startStep {
					t.checkpoint(step-1, epoch)
				}
				t.startStep = step
				return err
			}

			metrics, err := t.trainStep(ds, batch*batchSize, step, epoch)
			if err != nil {
				return fmt.Errorf("step %d failed: %w", step, err)
			}
			epochLoss += metrics.Loss
			epochSteps++

			every := t.config.Training.CheckpointEvery
			if every > 0 && (step+1)%every == 0 {
				t.checkpoint(step, epoch)
			}
			step++
		}

		em := EpochMetrics{
			Epoch:        epoch + 1,
			Loss:         epochLoss / float64(epochSteps),
			LearningRate: t.steps[len(t.steps)-1].LearningRate,
			Duration:     time.Since(startTime),
			Steps:        epochSteps,
		}
		t.epochs = append(t.epochs, em)

		t.logger.Info("Epoch complete",
			zap.Int("epoch", em.Epoch),
			zap.Float64("loss", em.Loss),
			zap.Float64("lr", em.LearningRate),
			zap.Duration("duration", em.Duration),
		)
		if t.onEpoch != nil {
			t.onEpoch(em)
		}
	}

	t.checkpoint(step-1, t.config.Training.Epochs-1)
	t.startStep = step
	return nil
}

func (t *Trainer) trainStep(ds *Dataset, offset, step, epoch int) (StepMetrics, error) {
	t.scheduler.Step()
	t.checkCycle()

	x, y := ds.Batch(offset, t.model.BatchSize())
	loss, err := t.model.Forward(x, y)
	if err != nil {
		return StepMetrics{}, err
	}
	if err := t.optimizer.Step(); err != nil {
		return StepMetrics{}, err
	}
	t.model.Reset()

	metrics := StepMetrics{
		Step:         step,
		Epoch:        epoch,
		Loss:         loss,
		LearningRate: t.groups[len(t.groups)-1].LearningRate,
	}
	t.steps = append(t.steps, metrics)

	t.logger.Debug("Step",
		zap.Int("step", step),
		zap.Float64("loss", loss),
		zap.Float64("lr", metrics.LearningRate),
	)
	return metrics, nil
}

// checkCycle warns once if the schedule reaches a cycle without a decay phase
func (t *Trainer) checkCycle() {
	ws, ok := t.scheduler.(*schedule.WarmupRestarts)
	if !ok || t.warnedCycle {
		return
	}
	if err := ws.Check(); err != nil {
		t.warnedCycle = true
		t.logger.Warn("Schedule holds the floor rate", zap.Error(err))
	}
}

// checkpoint saves weights and the schedule position; failures are logged
func (t *Trainer) checkpoint(step, epoch int) {
	if t.store == nil {
		return
	}

	cp := storage.Checkpoint{
		Run:        t.config.Training.Run,
		GlobalStep: step,
		Epoch:      epoch,
		Rates:      t.scheduler.CurrentRates(),
	}
	if n := len(t.steps); n > 0 {
		cp.Loss = t.steps[n-1].Loss
	}

	if path := t.config.Training.WeightsPath; path != "" {
		if err := weights.Save(path, t.model.Params()); err != nil {
			t.logger.Warn("Failed to save weights", zap.String("path", path), zap.Error(err))
		} else {
			cp.WeightsPath = path
		}
	}

	if err := t.store.Save(cp); err != nil {
		t.logger.Warn("Failed to save checkpoint", zap.Int("step", step), zap.Error(err))
		return
	}
	t.logger.Debug("Checkpoint saved", zap.Int("step", step))
}

// GetStepMetrics returns per-step metrics
func (t *Trainer) GetStepMetrics() []StepMetrics {
	return t.steps
}

// GetMetrics returns per-epoch metrics
func (t *Trainer) GetMetrics() []EpochMetrics {
	return t.epochs
}

// GetModel returns the underlying model
func (t *Trainer) GetModel() *LinearModel {
	return t.model
}

// Scheduler returns the learning rate scheduler
func (t *Trainer) Scheduler() schedule.Scheduler {
	return t.scheduler
}

// Close releases the model
func (t *Trainer) Close() error {
	return t.model.Close()
}
