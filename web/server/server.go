package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/df07/go-path-guiding/pkg/guiding"
	"github.com/df07/go-path-guiding/pkg/integrator"
	"github.com/df07/go-path-guiding/pkg/renderer"
)

const (
	maxPassesLimit    = 12
	minInitialPaths   = 16
	maxInitialPaths   = 1 << 20
	defaultScene      = "canopy"
	defaultMaxPasses  = 6
	defaultInitialRun = 4096
)

// Server streams guided training runs to web clients
type Server struct {
	port int
}

// NewServer creates a new web server
func NewServer(port int) *Server {
	return &Server{port: port}
}

// TrainRequest represents a training request from the client
type TrainRequest struct {
	Scene        string `json:"scene"`        // Scene name (e.g., "canopy")
	MaxPasses    int    `json:"maxPasses"`    // Number of passes including the final one
	InitialPaths int    `json:"initialPaths"` // Paths in the first pass
	Seed         int64  `json:"seed"`         // Base random seed

	Guiding  guiding.Config
	Training renderer.TrainingConfig
}

// Handler returns the routes served by the monitor
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/train", s.handleTrain)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/scene-config", s.handleSceneConfig)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("Starting web server on http://localhost%s", addr)
	server := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return server.ListenAndServe()
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// parseTrainRequest parses request parameters on top of the default configs
func (s *Server) parseTrainRequest(r *http.Request) (*TrainRequest, error) {
	query := r.URL.Query()
	req := &TrainRequest{
		Scene:    defaultScene,
		Guiding:  guiding.DefaultConfig(),
		Training: renderer.DefaultTrainingConfig(),
	}
	if scene := query.Get("scene"); scene != "" {
		req.Scene = scene
	}
	if s.createScene(req.Scene) == nil {
		return nil, fmt.Errorf("unknown scene: %s", req.Scene)
	}

	var err error
	if req.MaxPasses, err = parseIntParam(query, "maxPasses", defaultMaxPasses, 1, maxPassesLimit); err != nil {
		return nil, err
	}
	if req.InitialPaths, err = parseIntParam(query, "initialPaths", defaultInitialRun, minInitialPaths, maxInitialPaths); err != nil {
		return nil, err
	}
	seed, err := parseIntParam(query, "seed", 42, 0, 1<<30)
	if err != nil {
		return nil, err
	}
	req.Seed = int64(seed)

	if value := query.Get("spatialFilter"); value != "" {
		if req.Guiding.SpatialFilter, err = guiding.ParseSpatialFilter(value); err != nil {
			return nil, err
		}
	}
	if value := query.Get("directionalFilter"); value != "" {
		if req.Guiding.DirectionalFilter, err = guiding.ParseDirectionalFilter(value); err != nil {
			return nil, err
		}
	}
	if value := query.Get("bsdfFraction"); value != "" {
		if req.Guiding.BsdfSamplingFractionMode, err = guiding.ParseBsdfSamplingFractionMode(value); err != nil {
			return nil, err
		}
	}
	if req.Guiding.FixedBsdfSamplingFraction, err = parseFloatParam(query, "fixedFraction", 0.5, 0, 1); err != nil {
		return nil, err
	}
	if req.Guiding.LearningRate, err = parseFloatParam(query, "learningRate", 0.01, 1e-5, 1); err != nil {
		return nil, err
	}
	if err := req.Guiding.Validate(); err != nil {
		return nil, err
	}

	req.Training.MaxPasses = req.MaxPasses
	req.Training.InitialPaths = req.InitialPaths
	req.Training.Seed = req.Seed
	if err := req.Training.Validate(); err != nil {
		return nil, err
	}

	// Performance warning
	if req.InitialPaths<<(req.MaxPasses-1) > 1<<22 {
		log.Printf("Training warning: %d paths in the final pass may take a while", req.InitialPaths<<(req.MaxPasses-1))
	}

	return req, nil
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %f and %f, got: %f", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// createScene creates a scene based on the scene name
func (s *Server) createScene(sceneName string) *integrator.Scene {
	switch sceneName {
	case "canopy":
		return integrator.NewCanopyScene()
	case "furnace":
		return integrator.NewFurnaceScene(0.5)
	default:
		return nil
	}
}

// handleSceneConfig returns the default training configuration for a scene
func (s *Server) handleSceneConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sceneName := r.URL.Query().Get("scene")
	if sceneName == "" {
		sceneName = defaultScene
	}

	sceneObj := s.createScene(sceneName)
	if sceneObj == nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Unknown scene: " + sceneName})
		return
	}

	guidingConfig := guiding.DefaultConfig()
	sampling := integrator.DefaultSamplingConfig()
	bounds := sceneObj.Bounds()
	response := map[string]interface{}{
		"scene":    sceneName,
		"surfaces": len(sceneObj.Quads),
		"bounds": map[string][3]float64{
			"min": {bounds.Min.X, bounds.Min.Y, bounds.Min.Z},
			"max": {bounds.Max.X, bounds.Max.Y, bounds.Max.Z},
		},
		"defaults": map[string]interface{}{
			"maxPasses":                 defaultMaxPasses,
			"initialPaths":              defaultInitialRun,
			"maxDepth":                  sampling.MaxDepth,
			"russianRouletteMinBounces": sampling.RussianRouletteMinBounces,
			"spatialFilter":             guidingConfig.SpatialFilter.String(),
			"directionalFilter":         guidingConfig.DirectionalFilter.String(),
			"bsdfFraction":              guidingConfig.BsdfSamplingFractionMode.String(),
			"fixedFraction":             guidingConfig.FixedBsdfSamplingFraction,
			"learningRate":              guidingConfig.LearningRate,
		},
		"limits": map[string]interface{}{
			"maxPasses": map[string]int{
				"min": 1,
				"max": maxPassesLimit,
			},
			"initialPaths": map[string]int{
				"min": minInitialPaths,
				"max": maxInitialPaths,
			},
			"fixedFraction": map[string]float64{
				"min": 0,
				"max": 1,
			},
		},
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
