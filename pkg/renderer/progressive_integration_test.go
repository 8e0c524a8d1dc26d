package renderer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/df07/go-path-guiding/pkg/core"
	"github.com/df07/go-path-guiding/pkg/guiding"
	"github.com/df07/go-path-guiding/pkg/integrator"
)

// testLogger implements core.Logger for testing by counting lines
type testLogger struct {
	lines int
}

// Ensure testLogger implements core.Logger
var _ core.Logger = (*testLogger)(nil)

func (tl *testLogger) Printf(format string, args ...interface{}) {
	tl.lines++
}

func smallTrainingConfig() TrainingConfig {
	return TrainingConfig{
		MaxPasses:    4,
		InitialPaths: 2048,
		TaskSize:     128,
		NumWorkers:   4,
		Seed:         42,
	}
}

func newTestTrainer(config TrainingConfig) *GuidedTrainer {
	scene := integrator.NewCanopyScene()
	tree := guiding.NewSTree(scene.Bounds(), guiding.DefaultConfig(), nil)
	gi := integrator.NewGuidedIntegrator(scene, tree, integrator.DefaultSamplingConfig())
	return NewGuidedTrainer(gi, config, nil)
}

// collect drains both channels of a training run
func collect(t *testing.T, passChan <-chan PassResult, errChan <-chan error) ([]PassResult, error) {
	t.Helper()
	var results []PassResult
	timeout := time.After(60 * time.Second)
	for passChan != nil || errChan != nil {
		select {
		case result, ok := <-passChan:
			if !ok {
				passChan = nil
				continue
			}
			results = append(results, result)
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			return results, err
		case <-timeout:
			t.Fatalf("Training did not finish")
		}
	}
	return results, nil
}

func TestTrainRunsEveryPass(t *testing.T) {
	config := smallTrainingConfig()
	gt := newTestTrainer(config)

	passChan, errChan := gt.Train(context.Background())
	results, err := collect(t, passChan, errChan)
	if err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	if len(results) != config.MaxPasses {
		t.Fatalf("Expected %d passes, got %d", config.MaxPasses, len(results))
	}

	for i, result := range results {
		pass := i + 1
		if result.PassNumber != pass {
			t.Errorf("Result %d has pass number %d", i, result.PassNumber)
		}
		if expected := config.InitialPaths << i; result.Stats.Paths != expected {
			t.Errorf("Pass %d: expected %d paths, got %d", pass, expected, result.Stats.Paths)
		}
		if result.Stats.VerticesPerPath() < 0.5 {
			t.Errorf("Pass %d: expected most paths to record vertices, got %f per path",
				pass, result.Stats.VerticesPerPath())
		}
		if !result.Stats.MeanRadiance().IsValidSpectrum() {
			t.Errorf("Pass %d: invalid mean radiance %v", pass, result.Stats.MeanRadiance())
		}
		if result.IsLast != (pass == config.MaxPasses) {
			t.Errorf("Pass %d: IsLast = %v", pass, result.IsLast)
		}
	}

	if !gt.tree.IsFinalIteration() {
		t.Errorf("The last pass should run with a frozen tree")
	}

	// The tree subdivides as the doubling passes push regions past their budget
	last := results[len(results)-1].Stats.Tree
	if last.NumDTrees < 2 {
		t.Errorf("Expected the spatial tree to subdivide, got %d regions", last.NumDTrees)
	}
	if last.DTreeDepth.Max <= 2 {
		t.Errorf("Expected directional trees to refine, max depth %f", last.DTreeDepth.Max)
	}

	// The frozen final pass reports the same tree as the pass before it
	previous := results[len(results)-2].Stats.Tree
	if last.NumDTrees != previous.NumDTrees || last.DTreeNodes != previous.DTreeNodes {
		t.Errorf("Final pass changed the tree: %+v -> %+v", previous, last)
	}
}

func TestTrainIsDeterministic(t *testing.T) {
	config := smallTrainingConfig()
	config.MaxPasses = 2

	means := make([]core.Vec3, 2)
	for run := range means {
		// Learning is order dependent, so use the fixed fraction for a reproducible tree
		scene := integrator.NewCanopyScene()
		guideConfig := guiding.DefaultConfig()
		guideConfig.BsdfSamplingFractionMode = guiding.BsdfSamplingFractionFixed
		tree := guiding.NewSTree(scene.Bounds(), guideConfig, nil)
		gi := integrator.NewGuidedIntegrator(scene, tree, integrator.DefaultSamplingConfig())
		gt := NewGuidedTrainer(gi, config, nil)

		stats, err := gt.RunPass(context.Background(), 1)
		gt.Close()
		if err != nil {
			t.Fatalf("Run %d failed: %v", run, err)
		}
		means[run] = stats.MeanRadiance()
	}

	// The first pass samples only the BSDF, so only summation order can differ
	if means[0].Subtract(means[1]).Length() > 1e-9*math.Max(1, means[0].Length()) {
		t.Errorf("Identical seeds gave different estimates: %v vs %v", means[0], means[1])
	}
}

func TestTrainCancelledBeforeStart(t *testing.T) {
	gt := newTestTrainer(smallTrainingConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	passChan, errChan := gt.Train(ctx)
	results, err := collect(t, passChan, errChan)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no passes, got %d", len(results))
	}
}

func TestTrainLogsEveryPass(t *testing.T) {
	config := smallTrainingConfig()
	config.MaxPasses = 2
	logger := &testLogger{}

	scene := integrator.NewCanopyScene()
	tree := guiding.NewSTree(scene.Bounds(), guiding.DefaultConfig(), logger)
	gi := integrator.NewGuidedIntegrator(scene, tree, integrator.DefaultSamplingConfig())
	gt := NewGuidedTrainer(gi, config, logger)

	passChan, errChan := gt.Train(context.Background())
	if _, err := collect(t, passChan, errChan); err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	// Start line, then per pass a start line, a completion line and one tree build log
	// (the frozen final pass does not log a build)
	if expected := 1 + 2*2 + 1; logger.lines != expected {
		t.Errorf("Expected %d log lines, got %d", expected, logger.lines)
	}
}
