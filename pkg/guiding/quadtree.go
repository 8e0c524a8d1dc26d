package guiding

import (
	"fmt"
	"math"

	"github.com/df07/go-path-guiding/pkg/core"
)

// Child indices of a DirectionalNode
const (
	upperLeft = iota
	upperRight
	lowerLeft
	lowerRight
)

// quadrantOffsets are the local origins of the four children, in units of the parent square
var quadrantOffsets = [4]core.Vec2{
	upperLeft:  {X: 0, Y: 0},
	upperRight: {X: 0.5, Y: 0},
	lowerLeft:  {X: 0, Y: 0.5},
	lowerRight: {X: 0.5, Y: 0.5},
}

// largestBelowOne is the biggest float64 strictly less than 1
var largestBelowOne = math.Nextafter(1, 0)

// DirectionalNode is a node of the directional quadtree over [0,1)².
//
// current is accumulated concurrently during a pass; previous is the snapshot
// taken by BuildRadianceSums and is what Sample and Pdf read.
type DirectionalNode struct {
	current  atomicFloat
	previous float64
	children []*DirectionalNode // nil for a leaf, otherwise exactly four
}

// newDirectionalLeaf creates a leaf with both sums set to radianceSum
func newDirectionalLeaf(radianceSum float64) *DirectionalNode {
	n := &DirectionalNode{previous: radianceSum}
	n.current.Store(radianceSum)
	return n
}

// newDirectionalRoot creates an internal node with four empty leaves
func newDirectionalRoot() *DirectionalNode {
	n := &DirectionalNode{}
	n.split(0)
	return n
}

func (n *DirectionalNode) split(childSum float64) {
	n.children = make([]*DirectionalNode, 4)
	for i := range n.children {
		n.children[i] = newDirectionalLeaf(childSum)
	}
}

// IsLeaf reports whether the node has no children
func (n *DirectionalNode) IsLeaf() bool {
	return n.children == nil
}

// RadianceSum returns the snapshot taken by the last build
func (n *DirectionalNode) RadianceSum() float64 {
	return n.previous
}

// Clone deep-copies the subtree
func (n *DirectionalNode) Clone() *DirectionalNode {
	c := &DirectionalNode{previous: n.previous}
	c.current.Store(n.current.Load())
	if !n.IsLeaf() {
		c.children = make([]*DirectionalNode, 4)
		for i, child := range n.children {
			c.children[i] = child.Clone()
		}
	}
	return c
}

// chooseChild picks the quadrant containing direction and remaps direction into it
func chooseChild(direction core.Vec2) (int, core.Vec2) {
	var index int
	if direction.X < 0.5 {
		direction.X *= 2
	} else {
		direction.X = direction.X*2 - 1
		index = upperRight
	}
	if direction.Y < 0.5 {
		direction.Y *= 2
	} else {
		direction.Y = direction.Y*2 - 1
		index += lowerLeft
	}
	return index, direction
}

// AddRadiance deposits radiance into the leaf containing direction.
// Safe for concurrent use as long as the tree shape does not change.
func (n *DirectionalNode) AddRadiance(direction core.Vec2, radiance float64) {
	node := n
	for !node.IsLeaf() {
		var index int
		index, direction = chooseChild(direction)
		node = node.children[index]
	}
	node.current.Add(radiance)
}

// AddRadianceBox deposits radiance×overlap into every leaf whose box overlaps splat
func (n *DirectionalNode) AddRadianceBox(splat, nodeBox box2, radiance float64) {
	overlap := splat.intersect(nodeBox)
	if !overlap.isValid() {
		return
	}
	area := overlap.area()
	if area <= 0 {
		return
	}

	if n.IsLeaf() {
		n.current.Add(radiance * area)
		return
	}
	for i, child := range n.children {
		child.AddRadianceBox(splat, nodeBox.quadrant(i), radiance)
	}
}

// BuildRadianceSums snapshots the accumulators bottom-up and returns the subtree total.
// Must not run concurrently with AddRadiance.
func (n *DirectionalNode) BuildRadianceSums() float64 {
	if n.IsLeaf() {
		n.previous = n.current.Load()
		return n.previous
	}

	n.previous = 0
	for _, child := range n.children {
		n.previous += child.BuildRadianceSums()
	}
	return n.previous
}

// Restructure refines nodes holding more than threshold of totalRadianceSum and
// collapses the rest, then clears the accumulators. depth is 1 at the root.
func (n *DirectionalNode) Restructure(totalRadianceSum, threshold float64, depth, maxDepth int) {
	if totalRadianceSum <= 0 {
		return
	}

	fraction := n.previous / totalRadianceSum
	if fraction > threshold && depth < maxDepth {
		if n.IsLeaf() {
			n.split(0.25 * n.previous)
		}
		for _, child := range n.children {
			child.Restructure(totalRadianceSum, threshold, depth+1, maxDepth)
		}
	} else if !n.IsLeaf() {
		n.children = nil
	}

	n.current.Store(0)
}

// clampSample nudges coordinates equal to 1 just below it
func clampSample(sample core.Vec2) core.Vec2 {
	if sample.X >= 1 {
		sample.X = largestBelowOne
	}
	if sample.Y >= 1 {
		sample.Y = largestBelowOne
	}
	if !(sample.X >= 0 && sample.Y >= 0) {
		panic(fmt.Sprintf("guiding: sample %v outside [0,1)²", sample))
	}
	return sample
}

// Sample draws a point of [0,1)² proportionally to the recorded radiance and
// multiplies pdf by its solid angle density.
func (n *DirectionalNode) Sample(sample core.Vec2, pdf *float64) core.Vec2 {
	sample = clampSample(sample)

	if n.IsLeaf() {
		*pdf *= core.UniformSpherePDF
		return sample
	}

	ul := n.children[upperLeft].previous
	ur := n.children[upperRight].previous
	ll := n.children[lowerLeft].previous
	lr := n.children[lowerRight].previous
	leftHalf := ul + ll
	rightHalf := ur + lr

	var index int
	factor := leftHalf / n.previous
	if sample.X < factor {
		sample.X /= factor
		factor = ul / leftHalf
		index = upperLeft
	} else {
		sample.X = (sample.X - factor) / (1 - factor)
		factor = ur / rightHalf
		index = upperRight
	}

	if sample.Y < factor {
		sample.Y /= factor
	} else {
		sample.Y = (sample.Y - factor) / (1 - factor)
		index += lowerLeft
	}

	child := n.children[index]
	local := child.Sample(sample, pdf)
	*pdf *= 4 * child.previous / n.previous

	// Halving can round 1-ulp up to 1 in the upper quadrants
	result := quadrantOffsets[index].Add(local.Multiply(0.5))
	return core.NewVec2(min(result.X, largestBelowOne), min(result.Y, largestBelowOne))
}

// Pdf returns the solid angle density Sample assigns to direction
func (n *DirectionalNode) Pdf(direction core.Vec2) float64 {
	pdf := 1.0
	node := n
	for !node.IsLeaf() {
		var index int
		index, direction = chooseChild(direction)
		child := node.children[index]
		if child.previous <= 0 {
			return 0
		}
		pdf *= 4 * child.previous / node.previous
		node = child
	}
	return pdf * core.UniformSpherePDF
}

// Depth returns the depth of the leaf containing direction, the root counting as 1
func (n *DirectionalNode) Depth(direction core.Vec2) int {
	depth := 1
	node := n
	for !node.IsLeaf() {
		var index int
		index, direction = chooseChild(direction)
		node = node.children[index]
		depth++
	}
	return depth
}

// MaxDepth returns the depth of the deepest leaf, the root counting as 1
func (n *DirectionalNode) MaxDepth() int {
	if n.IsLeaf() {
		return 1
	}
	deepest := 0
	for _, child := range n.children {
		deepest = max(deepest, child.MaxDepth())
	}
	return 1 + deepest
}

// NodeCount returns the number of nodes in the subtree
func (n *DirectionalNode) NodeCount() int {
	if n.IsLeaf() {
		return 1
	}
	count := 1
	for _, child := range n.children {
		count += child.NodeCount()
	}
	return count
}
