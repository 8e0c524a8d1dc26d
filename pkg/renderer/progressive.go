package renderer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/df07/go-path-guiding/pkg/core"
	"github.com/df07/go-path-guiding/pkg/guiding"
	"github.com/df07/go-path-guiding/pkg/integrator"
)

// DefaultLogger implements core.Logger by writing to stdout
type DefaultLogger struct{}

func (dl *DefaultLogger) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// NewDefaultLogger creates a new default logger
func NewDefaultLogger() core.Logger {
	return &DefaultLogger{}
}

var (
	tracerOnce    sync.Once
	trainerTracer trace.Tracer
)

// getTracer returns the OTel tracer, initializing it lazily so that a
// provider installed after package init is picked up.
func getTracer() trace.Tracer {
	tracerOnce.Do(func() {
		trainerTracer = otel.Tracer("github.com/df07/go-path-guiding/pkg/renderer")
	})
	return trainerTracer
}

// TrainingConfig contains configuration for progressive training
type TrainingConfig struct {
	MaxPasses    int   // Number of passes, the last one renders with a frozen tree
	InitialPaths int   // Paths traced in the first pass; doubles every pass
	TaskSize     int   // Paths per worker task
	NumWorkers   int   // Number of parallel workers (0 = use CPU count)
	Seed         int64 // Base seed for the per-task random generators
}

// DefaultTrainingConfig returns sensible default values
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		MaxPasses:    6,    // 5 learning passes and a final one
		InitialPaths: 4096, // 4096, 8192, ... 131072
		TaskSize:     256,
		NumWorkers:   0, // Auto-detect CPU count
		Seed:         42,
	}
}

// Validate reports configuration values the trainer cannot run with
func (c TrainingConfig) Validate() error {
	switch {
	case c.MaxPasses < 1:
		return fmt.Errorf("max passes must be at least 1, got %d", c.MaxPasses)
	case c.InitialPaths < 1:
		return fmt.Errorf("initial paths must be at least 1, got %d", c.InitialPaths)
	case c.TaskSize < 1:
		return fmt.Errorf("task size must be at least 1, got %d", c.TaskSize)
	case c.MaxPasses > 30:
		return fmt.Errorf("max passes %d would overflow the doubling path count", c.MaxPasses)
	}
	return nil
}

// GuidedTrainer runs training passes over a scene: each pass traces paths in
// parallel while they record into the SD tree, then rebuilds the tree once
// every worker is done.
type GuidedTrainer struct {
	tree        *guiding.STree
	config      TrainingConfig
	currentPass int
	workerPool  *WorkerPool
	logger      core.Logger
}

// NewGuidedTrainer creates a trainer for the integrator's tree
func NewGuidedTrainer(gi *integrator.GuidedIntegrator, config TrainingConfig, logger core.Logger) *GuidedTrainer {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &GuidedTrainer{
		tree:       gi.Tree(),
		config:     config,
		workerPool: NewWorkerPool(gi, config.NumWorkers),
		logger:     logger,
	}
}

// getPathsForPass returns the number of paths traced in a 1-based pass
func (gt *GuidedTrainer) getPathsForPass(passNumber int) int {
	return gt.config.InitialPaths << (passNumber - 1)
}

// taskSeed derives a distinct seed for every task of every pass
func (gt *GuidedTrainer) taskSeed(passNumber, taskID int) int64 {
	return gt.config.Seed + int64(passNumber)*1_000_003 + int64(taskID)
}

// RunPass traces one pass using parallel processing and rebuilds the tree.
// Passes must run in order and never concurrently.
func (gt *GuidedTrainer) RunPass(ctx context.Context, passNumber int) (PassStats, error) {
	ctx, span := getTracer().Start(ctx, "renderer.GuidedTrainer.RunPass",
		trace.WithAttributes(
			attribute.Int("pass", passNumber),
			attribute.Bool("final", gt.tree.IsFinalIteration()),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context canceled")
		return PassStats{}, err
	}

	startTime := time.Now()
	gt.currentPass = passNumber
	numPaths := gt.getPathsForPass(passNumber)

	gt.logger.Printf("Pass %d: tracing %d paths (using %d workers)...\n",
		passNumber, numPaths, gt.workerPool.GetNumWorkers())

	gt.workerPool.Start()

	var tasks []PathTask
	for remaining, taskID := numPaths, 0; remaining > 0; taskID++ {
		size := min(remaining, gt.config.TaskSize)
		tasks = append(tasks, PathTask{
			PassNumber: passNumber,
			TaskID:     taskID,
			NumPaths:   size,
			Seed:       gt.taskSeed(passNumber, taskID),
		})
		remaining -= size
	}

	// Submit from a separate goroutine so the bounded queues cannot deadlock
	go func() {
		for _, task := range tasks {
			gt.workerPool.SubmitTask(task)
		}
	}()

	// Barrier: every path of this pass has recorded before the tree changes.
	// All results are drained even after a failure so no worker is left blocked.
	stats := PassStats{PassNumber: passNumber}
	var firstErr error
	for range tasks {
		result, ok := gt.workerPool.GetResult()
		if !ok {
			firstErr = fmt.Errorf("pass %d: worker pool closed unexpectedly", passNumber)
			break
		}
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("pass %d task %d: %w", passNumber, result.TaskID, result.Error)
			}
			continue
		}
		stats.Merge(result.Stats)
	}
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "pass failed")
		return PassStats{}, firstErr
	}
	span.AddEvent("paths_traced", trace.WithAttributes(attribute.Int("paths", stats.Paths)))

	stats.Tree = gt.buildTree(ctx, passNumber)
	stats.Elapsed = time.Since(startTime)
	observePass(stats)

	span.SetAttributes(
		attribute.Int("paths", stats.Paths),
		attribute.Int("vertices", stats.Vertices),
		attribute.Int64("duration_ms", stats.Elapsed.Milliseconds()),
	)
	span.SetStatus(codes.Ok, "pass completed")
	return stats, nil
}

// buildTree ends a pass. Iterations are 0-based for the subdivision schedule.
func (gt *GuidedTrainer) buildTree(ctx context.Context, passNumber int) guiding.Statistics {
	_, span := getTracer().Start(ctx, "guiding.STree.Build",
		trace.WithAttributes(attribute.Int("iteration", passNumber-1)),
	)
	defer span.End()

	stats := gt.tree.Build(passNumber - 1)
	span.SetAttributes(
		attribute.Int("dtrees", stats.NumDTrees),
		attribute.Int("stree_nodes", stats.NumSTreeNodes),
		attribute.Float64("dtree_depth_max", stats.DTreeDepth.Max),
	)
	return stats
}

// CurrentPass returns the last pass started
func (gt *GuidedTrainer) CurrentPass() int {
	return gt.currentPass
}

// Close stops the worker pool. The trainer cannot run passes afterwards.
func (gt *GuidedTrainer) Close() {
	gt.workerPool.Stop()
}

// PassResult contains the result of a single pass
type PassResult struct {
	PassNumber int
	Stats      PassStats
	IsLast     bool
}

// Train runs every pass with channel-based communication.
// The caller should read from both channels; the pass channel is closed when
// training ends and the error channel receives at most one error.
func (gt *GuidedTrainer) Train(ctx context.Context) (<-chan PassResult, <-chan error) {
	passChan := make(chan PassResult, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(passChan)
		defer close(errChan)
		defer gt.workerPool.Stop()

		gt.logger.Printf("Starting guided training with %d passes...\n", gt.config.MaxPasses)

		for pass := 1; pass <= gt.config.MaxPasses; pass++ {
			// Check if the caller gave up before starting this pass
			select {
			case <-ctx.Done():
				gt.logger.Printf("Training cancelled before pass %d\n", pass)
				errChan <- ctx.Err()
				return
			default:
			}

			isLast := pass == gt.config.MaxPasses
			if isLast && gt.config.MaxPasses > 1 {
				gt.tree.StartFinalIteration()
			}

			stats, err := gt.RunPass(ctx, pass)
			if err != nil {
				errChan <- err
				return
			}

			gt.logger.Printf("Pass %d completed in %v (%d paths, %.2f vertices/path, mean %.4f)\n",
				pass, stats.Elapsed, stats.Paths, stats.VerticesPerPath(), stats.MeanRadiance().Luminance())

			select {
			case passChan <- PassResult{PassNumber: pass, Stats: stats, IsLast: isLast}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return passChan, errChan
}
