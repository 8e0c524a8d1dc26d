package renderer

import (
	"time"

	"github.com/df07/go-path-guiding/pkg/core"
	"github.com/df07/go-path-guiding/pkg/guiding"
	"github.com/df07/go-path-guiding/pkg/integrator"
)

// PassStats contains statistics about one training pass
type PassStats struct {
	PassNumber  int
	Paths       int                // Paths traced
	Vertices    int                // Vertices handed to the spatial tree
	RadianceSum core.Vec3          // Sum of path estimates
	Elapsed     time.Duration      // Wall time including the build
	Tree        guiding.Statistics // SD tree after the build
}

// AddSample accumulates one traced path
func (ps *PassStats) AddSample(sample integrator.PathSample) {
	ps.Paths++
	ps.Vertices += sample.Vertices
	ps.RadianceSum = ps.RadianceSum.Add(sample.Radiance)
}

// Merge folds the counters of other into ps
func (ps *PassStats) Merge(other PassStats) {
	ps.Paths += other.Paths
	ps.Vertices += other.Vertices
	ps.RadianceSum = ps.RadianceSum.Add(other.RadianceSum)
}

// MeanRadiance returns the average path estimate of the pass
func (ps *PassStats) MeanRadiance() core.Vec3 {
	if ps.Paths == 0 {
		return core.Vec3{X: 0, Y: 0, Z: 0}
	}
	return ps.RadianceSum.Multiply(1.0 / float64(ps.Paths))
}

// VerticesPerPath returns the average number of recorded vertices per path
func (ps *PassStats) VerticesPerPath() float64 {
	if ps.Paths == 0 {
		return 0
	}
	return float64(ps.Vertices) / float64(ps.Paths)
}
