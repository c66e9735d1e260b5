package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/thyrook/trainkit/internal/config"
	"github.com/thyrook/trainkit/internal/logger"
	"github.com/thyrook/trainkit/internal/runenv"
	"github.com/thyrook/trainkit/internal/seed"
	"github.com/thyrook/trainkit/internal/storage"
	"github.com/thyrook/trainkit/internal/trainer"
)

const Version = "0.1.0"

func main() {
	var (
		configPath = flag.String("config", "config.json", "Path to configuration file")
		mode       = flag.String("mode", "train", "Operation mode: train, stats, init")
		epochs     = flag.Int("epochs", 0, "Override training epochs")
		resume     = flag.Bool("resume", false, "Resume from the latest checkpoint")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if *mode == "init" {
		if err := config.DefaultConfig().Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg := config.LoadOrDefault(*configPath)
	if *verbose {
		cfg.Logging.Level = string(logger.LevelDebug)
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *resume {
		cfg.Training.Resume = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	newLogger := logger.NewColor
	if runenv.IsNotebook() {
		newLogger = logger.New
	}
	log, err := newLogger(cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("trainkit starting",
		zap.String("version", Version),
		zap.String("mode", *mode),
		zap.String("go_version", runtime.Version()),
	)

	store, err := storage.NewCheckpointStore(cfg.Storage.DBPath, cfg.Storage.KeepCheckpoints)
	if err != nil {
		log.Error("Failed to open checkpoint store", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	switch *mode {
	case "train":
		err = runTrainMode(cfg, log, store)
	case "stats":
		err = runStatsMode(store)
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode: %s\n", *mode)
		fmt.Fprintf(os.Stderr, "Available modes: train, stats, init\n")
		os.Exit(1)
	}

	if err != nil {
		log.Error("Run failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("trainkit shutting down")
}

func runTrainMode(cfg *config.Config, log *zap.Logger, store *storage.CheckpointStore) error {
	rng, err := seed.All(cfg.Training.Seed)
	if err != nil {
		log.Warn("Seed not exported to child processes", zap.Error(err))
	}
	ds := trainer.Synthetic(rng, cfg.Training.Samples, []float64{1.5, -2.0, 0.75}, 0.3, 0.05)

	tr, err := trainer.NewTrainer(cfg, trainer.Options{
		Logger:   log,
		Store:    store,
		Init:     seed.Normal(rng, 0.1),
		Features: ds.Features(),
		OnEpoch: func(m trainer.EpochMetrics) {
			fmt.Printf("Epoch %d/%d - Loss: %.6f, LR: %.6f, Time: %v\n",
				m.Epoch, cfg.Training.Epochs, m.Loss, m.LearningRate, m.Duration)
		},
	})
	if err != nil {
		return err
	}
	defer tr.Close()

	if cfg.Training.Resume {
		resumed, err := tr.Restore()
		if err != nil {
			return err
		}
		if !resumed {
			log.Info("No checkpoint found, starting fresh", zap.String("run", cfg.Training.Run))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tr.Train(ctx, ds)
	if errors.Is(err, context.Canceled) {
		log.Warn("Training interrupted, checkpoint saved", zap.Int("global_step", tr.Scheduler().GlobalStep()))
		return nil
	}
	if err != nil {
		return err
	}

	w, b := tr.GetModel().Weights()
	fmt.Println()
	fmt.Println("Final Results:")
	fmt.Printf("  MSE:     %.6f\n", tr.GetModel().Evaluate(ds))
	fmt.Printf("  Weights: %v\n", w)
	fmt.Printf("  Bias:    %.4f\n", b)
	return nil
}

func runStatsMode(store *storage.CheckpointStore) error {
	stats, err := store.GetStats()
	if err != nil {
		return err
	}
	fmt.Printf("Checkpoint store: %s\n", stats.DBPath)
	fmt.Printf("  Checkpoints saved: %d\n", stats.TotalSaved)
	fmt.Printf("  Runs:              %d\n", stats.Runs)

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, run := range runs {
		cp, err := store.Latest(run)
		if err != nil {
			return err
		}
		fmt.Printf("  %-16s step %-8d epoch %-4d loss %.6f rates %v\n",
			run, cp.GlobalStep, cp.Epoch, cp.Loss, cp.Rates)
	}
	return nil
}
