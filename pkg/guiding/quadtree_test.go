package guiding

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/df07/go-path-guiding/pkg/core"
)

// checkSums verifies every internal node's snapshot equals the sum of its children
func checkSums(t *testing.T, n *DirectionalNode) {
	t.Helper()
	if n.IsLeaf() {
		return
	}
	sum := 0.0
	for _, child := range n.children {
		sum += child.previous
		checkSums(t, child)
	}
	if math.Abs(sum-n.previous) > 1e-9*math.Max(1, n.previous) {
		t.Errorf("Internal node sum %g differs from children sum %g", n.previous, sum)
	}
}

func TestChooseChild(t *testing.T) {
	tests := []struct {
		name          string
		direction     core.Vec2
		expectedIndex int
		expectedLocal core.Vec2
	}{
		{"upper left", core.NewVec2(0.25, 0.25), upperLeft, core.NewVec2(0.5, 0.5)},
		{"upper right", core.NewVec2(0.75, 0.1), upperRight, core.NewVec2(0.5, 0.2)},
		{"lower left", core.NewVec2(0.1, 0.75), lowerLeft, core.NewVec2(0.2, 0.5)},
		{"lower right", core.NewVec2(0.5, 0.5), lowerRight, core.NewVec2(0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, local := chooseChild(tt.direction)
			if index != tt.expectedIndex {
				t.Errorf("Expected child %d, got %d", tt.expectedIndex, index)
			}
			if math.Abs(local.X-tt.expectedLocal.X) > 1e-12 || math.Abs(local.Y-tt.expectedLocal.Y) > 1e-12 {
				t.Errorf("Expected local %v, got %v", tt.expectedLocal, local)
			}
		})
	}
}

func TestDirectionalNode_BuildRadianceSums(t *testing.T) {
	root := newDirectionalRoot()
	root.AddRadiance(core.NewVec2(0.1, 0.1), 1)
	root.AddRadiance(core.NewVec2(0.9, 0.1), 2)
	root.AddRadiance(core.NewVec2(0.9, 0.9), 3)
	root.AddRadiance(core.NewVec2(0.9, 0.8), 4)

	total := root.BuildRadianceSums()
	if total != 10 {
		t.Errorf("Expected total 10, got %f", total)
	}

	expected := [4]float64{upperLeft: 1, upperRight: 2, lowerLeft: 0, lowerRight: 7}
	for i, child := range root.children {
		if child.RadianceSum() != expected[i] {
			t.Errorf("Child %d: expected %f, got %f", i, expected[i], child.RadianceSum())
		}
	}
	checkSums(t, root)
}

func TestDirectionalNode_ConcurrentAddRadiance(t *testing.T) {
	root := newDirectionalRoot()
	const workers = 8
	const adds = 10000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			direction := core.NewVec2(0.3, float64(w%2)*0.5+0.1)
			for i := 0; i < adds; i++ {
				root.AddRadiance(direction, 1)
			}
		}(w)
	}
	wg.Wait()

	if total := root.BuildRadianceSums(); total != workers*adds {
		t.Errorf("Lost increments: expected %d, got %f", workers*adds, total)
	}
	if got := root.children[upperLeft].RadianceSum(); got != workers/2*adds {
		t.Errorf("Expected %d in upper left, got %f", workers/2*adds, got)
	}
}

func TestDirectionalNode_AddRadianceBoxConservesEnergy(t *testing.T) {
	root := newDirectionalRoot()
	root.children[upperLeft].split(0)

	splat := boxAround(core.NewVec2(0.3, 0.4), 0.5)
	root.AddRadianceBox(splat, unitBox2, 5/splat.area())

	if total := root.BuildRadianceSums(); math.Abs(total-5) > 1e-12 {
		t.Errorf("Expected total 5, got %f", total)
	}
	checkSums(t, root)

	// Every quadrant overlaps the splat
	for i, child := range root.children {
		if child.RadianceSum() <= 0 {
			t.Errorf("Child %d should have received radiance", i)
		}
	}
}

func TestDirectionalNode_AddRadianceBoxOutside(t *testing.T) {
	root := newDirectionalRoot()
	splat := box2{Min: core.NewVec2(2, 2), Max: core.NewVec2(3, 3)}
	root.AddRadianceBox(splat, unitBox2, 1)
	if total := root.BuildRadianceSums(); total != 0 {
		t.Errorf("Disjoint splat must not deposit anything, got %f", total)
	}
}

// skewedTree returns a built and restructured tree with a few bright directions
func skewedTree() *DirectionalNode {
	root := newDirectionalRoot()
	random := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		d := core.NewVec2(0.2+0.05*random.Float64(), 0.7+0.02*random.Float64())
		root.AddRadiance(d, 1)
	}
	for i := 0; i < 500; i++ {
		root.AddRadiance(core.NewVec2(random.Float64(), random.Float64()), 1)
	}
	root.BuildRadianceSums()
	root.Restructure(root.RadianceSum(), 0.01, 1, 20)
	return root
}

func TestDirectionalNode_SamplePdfConsistency(t *testing.T) {
	root := skewedTree()
	checkSums(t, root)

	sampler := core.NewRandomSampler(rand.New(rand.NewSource(7)))
	for i := 0; i < 2000; i++ {
		pdf := 1.0
		direction := root.Sample(sampler.Get2D(), &pdf)
		if direction.X < 0 || direction.X >= 1 || direction.Y < 0 || direction.Y >= 1 {
			t.Fatalf("Sample %d outside the unit square: %v", i, direction)
		}
		evaluated := root.Pdf(direction)
		if math.Abs(evaluated-pdf) > 1e-9*pdf {
			t.Fatalf("Sample %d at %v: sampled pdf %g, evaluated pdf %g", i, direction, pdf, evaluated)
		}
	}
}

func TestDirectionalNode_PdfIntegratesToOne(t *testing.T) {
	root := skewedTree()
	if root.MaxDepth() > 9 {
		t.Fatalf("Tree too deep for a 256 grid: %d", root.MaxDepth())
	}

	const n = 256
	integral := 0.0
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			direction := core.NewVec2((float64(x)+0.5)/n, (float64(y)+0.5)/n)
			integral += root.Pdf(direction) * 4 * math.Pi / (n * n)
		}
	}
	if math.Abs(integral-1) > 1e-9 {
		t.Errorf("Expected pdf to integrate to 1 over the sphere, got %f", integral)
	}
}

func TestDirectionalNode_SampleBoundary(t *testing.T) {
	root := skewedTree()
	pdf := 1.0
	direction := root.Sample(core.NewVec2(1, 1), &pdf)
	if direction.X >= 1 || direction.Y >= 1 {
		t.Errorf("Boundary sample must stay inside the unit square, got %v", direction)
	}
	if pdf <= 0 {
		t.Errorf("Expected positive pdf, got %f", pdf)
	}
}

func TestDirectionalNode_SampleOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic for negative sample")
		}
	}()
	pdf := 1.0
	skewedTree().Sample(core.NewVec2(-0.1, 0.5), &pdf)
}

func TestDirectionalNode_RestructureIsIdempotent(t *testing.T) {
	root := skewedTree()
	nodes, depth := root.NodeCount(), root.MaxDepth()

	root.Restructure(root.RadianceSum(), 0.01, 1, 20)
	if root.NodeCount() != nodes || root.MaxDepth() != depth {
		t.Errorf("Second restructure changed the shape: %d/%d nodes, %d/%d depth",
			nodes, root.NodeCount(), depth, root.MaxDepth())
	}

	// Building with empty accumulators leaves nothing to act on
	root.BuildRadianceSums()
	root.Restructure(root.RadianceSum(), 0.01, 1, 20)
	if root.NodeCount() != nodes {
		t.Errorf("Restructure of an empty pass changed the shape: %d -> %d nodes", nodes, root.NodeCount())
	}
}

func TestDirectionalNode_RestructureCollapses(t *testing.T) {
	root := skewedTree()
	grown := root.NodeCount()

	// Next pass only sees light in the upper right quadrant
	for i := 0; i < 100; i++ {
		root.AddRadiance(core.NewVec2(0.8, 0.2), 1)
	}
	root.BuildRadianceSums()
	root.Restructure(root.RadianceSum(), 0.01, 1, 20)

	if !root.children[lowerLeft].IsLeaf() {
		t.Errorf("Dark quadrant should collapse to a leaf")
	}
	if root.children[upperRight].IsLeaf() {
		t.Errorf("Bright quadrant should be refined")
	}
	if root.NodeCount() == grown {
		t.Errorf("Expected the shape to change")
	}
}

func TestDirectionalNode_DepthCap(t *testing.T) {
	root := newDirectionalRoot()
	direction := core.NewVec2(0.123, 0.456)

	for pass := 0; pass < 8; pass++ {
		for i := 0; i < 100; i++ {
			root.AddRadiance(direction, 1)
		}
		root.BuildRadianceSums()
		root.Restructure(root.RadianceSum(), 0.01, 1, 20)

		if root.MaxDepth() > 20 {
			t.Fatalf("Pass %d: depth %d exceeds the cap", pass, root.MaxDepth())
		}
	}

	if root.Depth(direction) != 20 {
		t.Errorf("Expected the bright direction to reach depth 20, got %d", root.Depth(direction))
	}
}

func TestDirectionalNode_Clone(t *testing.T) {
	root := skewedTree()
	clone := root.Clone()

	if clone.NodeCount() != root.NodeCount() || clone.RadianceSum() != root.RadianceSum() {
		t.Fatalf("Clone differs from original")
	}

	clone.AddRadiance(core.NewVec2(0.5, 0.5), 100)
	clone.BuildRadianceSums()
	clone.Restructure(clone.RadianceSum(), 0.5, 1, 20)

	if clone.NodeCount() == root.NodeCount() {
		t.Errorf("Clone shares structure with the original")
	}
}
