package guiding

import (
	"math"
	"time"

	"github.com/df07/go-path-guiding/pkg/core"
)

// spatialNode is either a *spatialLeaf owning a DTree or a *spatialSplit owning two children
type spatialNode interface {
	build()
	restructure(threshold float64)
	subdivide(requiredSamples float64) spatialNode
	recordBox(splat, nodeBox core.AABB, rec Record)
	gatherStatistics(stats *Statistics, depth int)
}

// spatialLeaf is a region that learns its own directional distribution
type spatialLeaf struct {
	axis  int // Axis its children will inherit +1 from
	dTree *DTree
}

// spatialSplit halves its region along axis; children[0] holds the lower half
type spatialSplit struct {
	axis     int
	children [2]spatialNode
}

// newChildLeaf inherits a decayed copy of the parent's DTree
func newChildLeaf(parentAxis int, parent *DTree) *spatialLeaf {
	dTree := parent.Clone()
	dTree.HalveSampleWeight()
	return &spatialLeaf{
		axis:  (parentAxis + 1) % 3,
		dTree: dTree,
	}
}

func (l *spatialLeaf) build() {
	l.dTree.Build()
}

func (l *spatialLeaf) restructure(threshold float64) {
	l.dTree.Restructure(threshold)
}

func (l *spatialLeaf) subdivide(requiredSamples float64) spatialNode {
	if l.dTree.SampleWeight() <= requiredSamples {
		return l
	}

	split := &spatialSplit{axis: l.axis}
	for i := range split.children {
		split.children[i] = newChildLeaf(l.axis, l.dTree)
	}
	return split.subdivide(requiredSamples)
}

func (l *spatialLeaf) recordBox(splat, nodeBox core.AABB, rec Record) {
	overlap := splat.Intersect(nodeBox)
	if !overlap.IsValid() {
		return
	}
	volume := overlap.Volume()
	if volume <= 0 {
		return
	}
	rec.SampleWeight *= volume
	l.dTree.Record(rec)
}

func (l *spatialLeaf) gatherStatistics(stats *Statistics, depth int) {
	stats.NumSTreeNodes++
	stats.addLeaf(l.dTree, depth)
}

func (s *spatialSplit) build() {
	for _, child := range s.children {
		child.build()
	}
}

func (s *spatialSplit) restructure(threshold float64) {
	for _, child := range s.children {
		child.restructure(threshold)
	}
}

func (s *spatialSplit) subdivide(requiredSamples float64) spatialNode {
	for i, child := range s.children {
		s.children[i] = child.subdivide(requiredSamples)
	}
	return s
}

func (s *spatialSplit) recordBox(splat, nodeBox core.AABB, rec Record) {
	if !splat.Intersect(nodeBox).IsValid() {
		return
	}
	half := nodeBox.Size().Get(s.axis) * 0.5
	offset := core.Vec3{}.With(s.axis, half)

	s.children[0].recordBox(splat, core.NewAABB(nodeBox.Min, nodeBox.Max.Subtract(offset)), rec)
	s.children[1].recordBox(splat, core.NewAABB(nodeBox.Min.Add(offset), nodeBox.Max), rec)
}

func (s *spatialSplit) gatherStatistics(stats *Statistics, depth int) {
	stats.NumSTreeNodes++
	for _, child := range s.children {
		child.gatherStatistics(stats, depth+1)
	}
}

// STree partitions the scene cube into regions that each own a DTree.
//
// Lookups, Sample and Record may be called from many goroutines during a
// pass. Build, StartFinalIteration and everything that changes the tree shape
// must only run between passes.
type STree struct {
	config           Config
	box              core.AABB
	root             spatialNode
	logger           core.Logger
	isBuilt          bool
	isFinalIteration bool
}

// NewSTree creates a single-region tree over sceneBox grown into a cube
func NewSTree(sceneBox core.AABB, config Config, logger core.Logger) *STree {
	if logger == nil {
		logger = core.NopLogger{}
	}
	t := &STree{
		config: config,
		box:    sceneBox.Cube(),
		logger: logger,
	}
	t.root = &spatialLeaf{axis: 0, dTree: NewDTree(&t.config)}
	return t
}

// Box returns the cube the tree covers
func (t *STree) Box() core.AABB {
	return t.box
}

// Config returns the parameters the tree was built with
func (t *STree) Config() Config {
	return t.config
}

// GetDTree returns the DTree covering point together with the size of its region
func (t *STree) GetDTree(point core.Vec3) (*DTree, core.Vec3) {
	size := t.box.Size()
	local := point.Subtract(t.box.Min).DivideVec(size)

	node := t.root
	for {
		switch n := node.(type) {
		case *spatialLeaf:
			return n.dTree, size
		case *spatialSplit:
			size = size.With(n.axis, size.Get(n.axis)*0.5)
			v := local.Get(n.axis)
			if v < 0.5 {
				local = local.With(n.axis, v*2)
				node = n.children[0]
			} else {
				local = local.With(n.axis, (v-0.5)*2)
				node = n.children[1]
			}
		}
	}
}

// Record splats rec into the tree according to the spatial filter. dTree and
// voxelSize are what GetDTree returned for point.
func (t *STree) Record(dTree *DTree, point, voxelSize core.Vec3, rec Record, sampler core.Sampler) {
	if t.isFinalIteration {
		return
	}

	switch t.config.SpatialFilter {
	case SpatialFilterNearest:
		dTree.Record(rec)

	case SpatialFilterStochastic:
		offset := voxelSize.MultiplyVec(sampler.Get3D().Subtract(core.Splat(0.5)))
		jittered := t.box.Clip(point.Add(offset))
		jitteredTree, _ := t.GetDTree(jittered)
		jitteredTree.Record(rec)

	case SpatialFilterBox:
		half := voxelSize.Multiply(0.5)
		splat := core.NewAABB(point.Subtract(half), point.Add(half))
		volume := splat.Volume()
		if !splat.IsValid() || volume <= 0 {
			return
		}
		rec.SampleWeight /= volume
		t.root.recordBox(splat, t.box, rec)
	}
}

// RequiredSamples returns the sample weight a region needs after the given
// pass before it is split. Later passes trace more paths so need more weight.
func (t *STree) RequiredSamples(iteration int) float64 {
	samples := math.Pow(2, float64(iteration)) * float64(t.config.SamplesPerPass) * 0.25
	return math.Floor(math.Sqrt(samples) * t.config.SpatialSubdivisionThreshold)
}

// Build ends a pass: it snapshots every DTree, splits regions that gathered
// enough weight and adapts every quadtree. During the final iteration the tree
// is left untouched.
func (t *STree) Build(iteration int) Statistics {
	if t.isFinalIteration {
		return t.Statistics()
	}
	start := time.Now()

	t.root.build()
	t.root = t.root.subdivide(t.RequiredSamples(iteration))
	t.root.restructure(t.config.DTreeThreshold)

	stats := t.Statistics()
	t.logger.Printf("SD tree statistics after pass %d: [min, max, avg]\n%s", iteration, stats)
	observeBuild(stats, time.Since(start))

	t.isBuilt = true
	return stats
}

// Statistics gathers diagnostic statistics over all regions
func (t *STree) Statistics() Statistics {
	stats := newStatistics()
	t.root.gatherStatistics(&stats, 1)
	stats.finalize()
	return stats
}

// IsBuilt reports whether Build has run at least once
func (t *STree) IsBuilt() bool {
	return t.isBuilt
}

// StartFinalIteration freezes the tree for the last pass
func (t *STree) StartFinalIteration() {
	t.isFinalIteration = true
}

// IsFinalIteration reports whether StartFinalIteration was called
func (t *STree) IsFinalIteration() bool {
	return t.isFinalIteration
}
