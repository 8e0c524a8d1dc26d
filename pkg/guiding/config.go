package guiding

import (
	"fmt"
	"strings"
)

// DirectionalFilter selects how a record is splatted into a DTree
type DirectionalFilter int

const (
	DirectionalFilterNearest DirectionalFilter = iota // Deposit into the single leaf containing the direction
	DirectionalFilterBox                              // Spread over a leaf-sized box around the direction
)

func (f DirectionalFilter) String() string {
	switch f {
	case DirectionalFilterNearest:
		return "nearest"
	case DirectionalFilterBox:
		return "box"
	default:
		return fmt.Sprintf("DirectionalFilter(%d)", int(f))
	}
}

// ParseDirectionalFilter converts a flag value into a DirectionalFilter
func ParseDirectionalFilter(s string) (DirectionalFilter, error) {
	switch strings.ToLower(s) {
	case "nearest":
		return DirectionalFilterNearest, nil
	case "box":
		return DirectionalFilterBox, nil
	}
	return 0, fmt.Errorf("unknown directional filter %q", s)
}

// SpatialFilter selects how a record is splatted into the STree
type SpatialFilter int

const (
	SpatialFilterNearest    SpatialFilter = iota // Record into the DTree covering the point
	SpatialFilterStochastic                      // Jitter the point by up to one voxel before lookup
	SpatialFilterBox                             // Spread over every leaf overlapping a voxel-sized box
)

func (f SpatialFilter) String() string {
	switch f {
	case SpatialFilterNearest:
		return "nearest"
	case SpatialFilterStochastic:
		return "stochastic"
	case SpatialFilterBox:
		return "box"
	default:
		return fmt.Sprintf("SpatialFilter(%d)", int(f))
	}
}

// ParseSpatialFilter converts a flag value into a SpatialFilter
func ParseSpatialFilter(s string) (SpatialFilter, error) {
	switch strings.ToLower(s) {
	case "nearest":
		return SpatialFilterNearest, nil
	case "stochastic":
		return SpatialFilterStochastic, nil
	case "box":
		return SpatialFilterBox, nil
	}
	return 0, fmt.Errorf("unknown spatial filter %q", s)
}

// BsdfSamplingFractionMode selects whether the BSDF/guide mixing weight is fixed or learned
type BsdfSamplingFractionMode int

const (
	BsdfSamplingFractionFixed BsdfSamplingFractionMode = iota
	BsdfSamplingFractionLearn
)

func (m BsdfSamplingFractionMode) String() string {
	switch m {
	case BsdfSamplingFractionFixed:
		return "fixed"
	case BsdfSamplingFractionLearn:
		return "learn"
	default:
		return fmt.Sprintf("BsdfSamplingFractionMode(%d)", int(m))
	}
}

// ParseBsdfSamplingFractionMode converts a flag value into a BsdfSamplingFractionMode
func ParseBsdfSamplingFractionMode(s string) (BsdfSamplingFractionMode, error) {
	switch strings.ToLower(s) {
	case "fixed":
		return BsdfSamplingFractionFixed, nil
	case "learn":
		return BsdfSamplingFractionLearn, nil
	}
	return 0, fmt.Errorf("unknown bsdf sampling fraction mode %q", s)
}

// AdamConfig holds the hyperparameters of the sampling fraction optimizer
type AdamConfig struct {
	Beta1          float64
	Beta2          float64
	Epsilon        float64
	Regularization float64 // L2 weight on theta
	ThetaLimit     float64 // theta is clamped to [-ThetaLimit, ThetaLimit]
}

// Config contains the parameters of an SD-tree. It is copied into every tree on construction.
type Config struct {
	DirectionalFilter         DirectionalFilter
	SpatialFilter             SpatialFilter
	BsdfSamplingFractionMode  BsdfSamplingFractionMode
	FixedBsdfSamplingFraction float64 // Used when the mode is Fixed
	LearningRate              float64 // Adam base learning rate
	SamplesPerPass            int     // Samples per pixel traced in one pass

	SpatialSubdivisionThreshold float64 // Scales the sample weight a leaf needs before splitting
	DTreeThreshold              float64 // Radiance fraction above which a quadtree node is refined
	DTreeMaxDepth               int     // Quadtree depth cap, root counts as 1
	Epsilon                     float64 // Minimum throughput×pdf for inverting a throughput channel

	Adam AdamConfig
}

// DefaultConfig returns sensible default values
func DefaultConfig() Config {
	return Config{
		DirectionalFilter:         DirectionalFilterNearest,
		SpatialFilter:             SpatialFilterNearest,
		BsdfSamplingFractionMode:  BsdfSamplingFractionLearn,
		FixedBsdfSamplingFraction: 0.5,
		LearningRate:              0.01,
		SamplesPerPass:            1,

		SpatialSubdivisionThreshold: 4000,
		DTreeThreshold:              0.01,
		DTreeMaxDepth:               20,
		Epsilon:                     1e-4,

		Adam: AdamConfig{
			Beta1:          0.9,
			Beta2:          0.999,
			Epsilon:        1e-8,
			Regularization: 0.01,
			ThetaLimit:     20,
		},
	}
}

// Validate reports the first out-of-range parameter
func (c Config) Validate() error {
	switch {
	case c.FixedBsdfSamplingFraction < 0 || c.FixedBsdfSamplingFraction > 1:
		return fmt.Errorf("fixed bsdf sampling fraction %g outside [0, 1]", c.FixedBsdfSamplingFraction)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	case c.SamplesPerPass <= 0:
		return fmt.Errorf("samples per pass must be positive, got %d", c.SamplesPerPass)
	case c.SpatialSubdivisionThreshold <= 0:
		return fmt.Errorf("spatial subdivision threshold must be positive, got %g", c.SpatialSubdivisionThreshold)
	case c.DTreeThreshold <= 0 || c.DTreeThreshold >= 1:
		return fmt.Errorf("directional threshold %g outside (0, 1)", c.DTreeThreshold)
	case c.DTreeMaxDepth < 1:
		return fmt.Errorf("directional max depth must be at least 1, got %d", c.DTreeMaxDepth)
	case c.Adam.ThetaLimit <= 0:
		return fmt.Errorf("theta limit must be positive, got %g", c.Adam.ThetaLimit)
	}
	return nil
}
