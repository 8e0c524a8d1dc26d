package guiding

import (
	"fmt"
	"math"
)

// MinMaxAvg summarizes one quantity over all regions
type MinMaxAvg struct {
	Min, Max, Avg float64
}

func newMinMaxAvg() MinMaxAvg {
	return MinMaxAvg{Min: math.MaxFloat64}
}

func (m *MinMaxAvg) add(v float64) {
	m.Min = math.Min(m.Min, v)
	m.Max = math.Max(m.Max, v)
	m.Avg += v
}

// Statistics describes the shape and content of an STree. Diagnostic only.
type Statistics struct {
	DTreeDepth    MinMaxAvg // Max quadtree depth per region
	STreeDepth    MinMaxAvg // Depth of each region in the spatial tree
	MeanRadiance  MinMaxAvg
	DTreeNodes    MinMaxAvg
	SampleWeight  MinMaxAvg
	NumDTrees     int
	NumSTreeNodes int
}

func newStatistics() Statistics {
	return Statistics{
		DTreeDepth:   newMinMaxAvg(),
		STreeDepth:   newMinMaxAvg(),
		MeanRadiance: newMinMaxAvg(),
		DTreeNodes:   newMinMaxAvg(),
		SampleWeight: newMinMaxAvg(),
	}
}

func (s *Statistics) addLeaf(dTree *DTree, depth int) {
	s.NumDTrees++
	s.DTreeDepth.add(float64(dTree.MaxDepth()))
	s.STreeDepth.add(float64(depth))
	s.MeanRadiance.add(dTree.Mean())
	s.DTreeNodes.add(float64(dTree.NodeCount()))
	s.SampleWeight.add(dTree.SampleWeight())
}

func (s *Statistics) finalize() {
	if s.NumDTrees == 0 {
		return
	}
	n := float64(s.NumDTrees)
	for _, m := range []*MinMaxAvg{&s.DTreeDepth, &s.STreeDepth, &s.MeanRadiance, &s.DTreeNodes, &s.SampleWeight} {
		m.Avg /= n
	}
}

func (s Statistics) String() string {
	return fmt.Sprintf(
		"  DTree Depth     = [%.0f, %.0f, %.2f]\n"+
			"  STree Depth     = [%.0f, %.0f, %.2f]\n"+
			"  Mean radiance   = [%.4f, %.4f, %.4f]\n"+
			"  Node count      = [%.0f, %.0f, %.4f]\n"+
			"  Sample weight   = [%.4f, %.4f, %.4f]\n",
		s.DTreeDepth.Min, s.DTreeDepth.Max, s.DTreeDepth.Avg,
		s.STreeDepth.Min, s.STreeDepth.Max, s.STreeDepth.Avg,
		s.MeanRadiance.Min, s.MeanRadiance.Max, s.MeanRadiance.Avg,
		s.DTreeNodes.Min, s.DTreeNodes.Max, s.DTreeNodes.Avg,
		s.SampleWeight.Min, s.SampleWeight.Max, s.SampleWeight.Avg)
}
