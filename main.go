package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/df07/go-path-guiding/pkg/core"
	"github.com/df07/go-path-guiding/pkg/guiding"
	"github.com/df07/go-path-guiding/pkg/integrator"
	"github.com/df07/go-path-guiding/pkg/renderer"
)

// options holds the parsed command line
type options struct {
	sceneType         string
	passes            int
	initialPaths      int
	workers           int
	seed              int64
	spatialFilter     string
	directionalFilter string
	fractionMode      string
	fixedFraction     float64
	learningRate      float64
	metricsAddr       string
}

func main() {
	var opts options
	flag.StringVar(&opts.sceneType, "scene", "canopy", "Scene type: 'canopy' or 'furnace'")
	flag.IntVar(&opts.passes, "passes", 6, "Number of passes, the last one uses a frozen tree")
	flag.IntVar(&opts.initialPaths, "paths", 4096, "Paths traced in the first pass (doubles every pass)")
	flag.IntVar(&opts.workers, "workers", 0, "Number of parallel workers (0 = use CPU count)")
	flag.Int64Var(&opts.seed, "seed", 42, "Base random seed")
	flag.StringVar(&opts.spatialFilter, "spatial-filter", "nearest", "Spatial filter: nearest, stochastic or box")
	flag.StringVar(&opts.directionalFilter, "directional-filter", "nearest", "Directional filter: nearest or box")
	flag.StringVar(&opts.fractionMode, "bsdf-fraction", "learn", "BSDF sampling fraction: learn or fixed")
	flag.Float64Var(&opts.fixedFraction, "fixed-fraction", 0.5, "BSDF sampling fraction used in fixed mode")
	flag.Float64Var(&opts.learningRate, "learning-rate", 0.01, "Adam learning rate for the BSDF sampling fraction")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	help := flag.Bool("help", false, "Show help information")
	flag.Parse()

	// Show help if requested
	if *help {
		fmt.Println("Path Guiding Trainer")
		fmt.Println("Usage: pathguide [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Available scenes:")
		fmt.Println("  canopy  - Ground plane half covered by a canopy under a sunny sky")
		fmt.Println("  furnace - Open ground plane under a constant white sky")
		fmt.Println()
		fmt.Println("SD tree statistics will be saved to output/<scene_type>/sdtree_<timestamp>.txt")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, renderer.NewDefaultLogger()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run trains an SD tree for the selected scene and writes its statistics
func run(ctx context.Context, opts options, logger core.Logger) error {
	selectedScene, err := createScene(opts.sceneType)
	if err != nil {
		return err
	}

	guidingConfig, err := createGuidingConfig(opts)
	if err != nil {
		return fmt.Errorf("guiding config: %w", err)
	}

	trainingConfig := renderer.DefaultTrainingConfig()
	trainingConfig.MaxPasses = opts.passes
	trainingConfig.InitialPaths = opts.initialPaths
	trainingConfig.NumWorkers = opts.workers
	trainingConfig.Seed = opts.seed
	if err := trainingConfig.Validate(); err != nil {
		return fmt.Errorf("training config: %w", err)
	}

	if opts.metricsAddr != "" {
		serveMetrics(opts.metricsAddr, logger)
	}

	outputDir := createOutputDir(opts.sceneType)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	logger.Printf("Training %s scene with %s spatial and %s directional filtering...\n",
		opts.sceneType, guidingConfig.SpatialFilter, guidingConfig.DirectionalFilter)

	tree := guiding.NewSTree(selectedScene.Bounds(), guidingConfig, logger)
	gi := integrator.NewGuidedIntegrator(selectedScene, tree, integrator.DefaultSamplingConfig())
	trainer := renderer.NewGuidedTrainer(gi, trainingConfig, logger)

	startTime := time.Now()
	passChan, errChan := trainer.Train(ctx)

	var last renderer.PassResult
	for result := range passChan {
		last = result
	}
	if err := <-errChan; err != nil {
		return fmt.Errorf("training: %w", err)
	}

	logger.Printf("Training completed in %v\n", time.Since(startTime))
	logger.Printf("Final pass mean radiance: %.4f\n", last.Stats.MeanRadiance().Luminance())

	filename := filepath.Join(outputDir, fmt.Sprintf("sdtree_%s.txt", time.Now().Format("20060102_150405")))
	if err := writeReport(filename, opts, last.Stats); err != nil {
		return err
	}
	logger.Printf("Statistics saved as %s\n", filename)
	return nil
}

// createScene returns the named built-in scene
func createScene(sceneType string) (*integrator.Scene, error) {
	switch sceneType {
	case "canopy":
		return integrator.NewCanopyScene(), nil
	case "furnace":
		return integrator.NewFurnaceScene(0.5), nil
	default:
		return nil, fmt.Errorf("unknown scene type %q", sceneType)
	}
}

// createGuidingConfig applies the command line on top of the defaults
func createGuidingConfig(opts options) (guiding.Config, error) {
	config := guiding.DefaultConfig()

	spatialFilter, err := guiding.ParseSpatialFilter(opts.spatialFilter)
	if err != nil {
		return guiding.Config{}, err
	}
	directionalFilter, err := guiding.ParseDirectionalFilter(opts.directionalFilter)
	if err != nil {
		return guiding.Config{}, err
	}
	fractionMode, err := guiding.ParseBsdfSamplingFractionMode(opts.fractionMode)
	if err != nil {
		return guiding.Config{}, err
	}

	config.SpatialFilter = spatialFilter
	config.DirectionalFilter = directionalFilter
	config.BsdfSamplingFractionMode = fractionMode
	config.FixedBsdfSamplingFraction = opts.fixedFraction
	config.LearningRate = opts.learningRate

	if err := config.Validate(); err != nil {
		return guiding.Config{}, err
	}
	return config, nil
}

// createOutputDir returns the directory results for sceneType are written to
func createOutputDir(sceneType string) string {
	return filepath.Join("output", sceneType)
}

// serveMetrics exposes the Prometheus registry in the background
func serveMetrics(addr string, logger core.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Metrics server stopped: %v\n", err)
		}
	}()
	logger.Printf("Serving metrics on %s/metrics\n", addr)
}

// writeReport saves the final tree statistics
func writeReport(filename string, opts options, stats renderer.PassStats) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	defer file.Close()

	_, err = fmt.Fprintf(file,
		"scene: %s\npasses: %d\npaths in final pass: %d\nvertices per path: %.3f\nmean radiance: %v\n"+
			"regions: %d\nspatial nodes: %d\n[min, max, avg]\n%s",
		opts.sceneType, stats.PassNumber, stats.Paths, stats.VerticesPerPath(), stats.MeanRadiance(),
		stats.Tree.NumDTrees, stats.Tree.NumSTreeNodes, stats.Tree)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
