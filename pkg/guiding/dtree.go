package guiding

import (
	"math"

	"github.com/df07/go-path-guiding/pkg/core"
)

// Record is one radiance estimate to be learned by a DTree
type Record struct {
	Direction    core.Vec3 // Unit direction the radiance arrives from
	Radiance     float64   // Incident radiance estimate (channel average)
	WiPdf        float64   // Density the direction was actually sampled with
	BsdfPdf      float64   // BSDF sampling density of the direction
	DTreePdf     float64   // Guiding density of the direction
	SampleWeight float64   // Statistical weight of the path
	Product      float64   // Incident radiance × BSDF value (channel average)
	IsDelta      bool      // Scattering event was a Dirac delta
}

// DTreeSample is a direction drawn from a DTree
type DTreeSample struct {
	Direction core.Vec3
	Pdf       float64 // Solid angle density
}

// adamState is the optimizer state for the BSDF sampling fraction
type adamState struct {
	firstMoment  float64
	secondMoment float64
	steps        int
}

// DTree approximates the incident radiance distribution of one spatial region
type DTree struct {
	config *Config
	root   *DirectionalNode

	currentSampleWeight  atomicFloat
	previousSampleWeight float64

	theta     atomicFloat // Logit of the BSDF sampling fraction
	optimizer adamState   // Guarded by lock
	lock      spinLock

	built bool // Set by the first Restructure; learning waits for it
}

// NewDTree creates an empty DTree whose root already has four leaves
func NewDTree(config *Config) *DTree {
	return &DTree{
		config: config,
		root:   newDirectionalRoot(),
	}
}

// Clone deep-copies the tree including its learned state
func (d *DTree) Clone() *DTree {
	c := &DTree{
		config:               d.config,
		root:                 d.root.Clone(),
		previousSampleWeight: d.previousSampleWeight,
		optimizer:            d.optimizer,
		built:                d.built,
	}
	c.currentSampleWeight.Store(d.currentSampleWeight.Load())
	c.theta.Store(d.theta.Load())
	return c
}

// Record accumulates rec into the quadtree and, when learning, takes one
// optimizer step. Invalid records are dropped.
func (d *DTree) Record(rec Record) {
	switch {
	case rec.IsDelta:
		droppedRecords.WithLabelValues("delta").Inc()
		return
	case !isPositiveFinite(rec.SampleWeight):
		droppedRecords.WithLabelValues("weight").Inc()
		return
	case !isPositiveFinite(rec.WiPdf):
		droppedRecords.WithLabelValues("pdf").Inc()
		return
	case math.IsNaN(rec.Radiance) || math.IsInf(rec.Radiance, 0) || rec.Radiance < 0:
		droppedRecords.WithLabelValues("radiance").Inc()
		return
	}

	d.currentSampleWeight.Add(rec.SampleWeight)

	radiance := rec.Radiance / rec.WiPdf * rec.SampleWeight
	direction := CartesianToCylindrical(rec.Direction)

	switch d.config.DirectionalFilter {
	case DirectionalFilterNearest:
		d.root.AddRadiance(direction, radiance)
	case DirectionalFilterBox:
		leafSize := math.Pow(0.5, float64(d.root.Depth(direction)-1))
		splat := boxAround(direction, leafSize)
		if !splat.isValid() || splat.area() <= 0 {
			return
		}
		d.root.AddRadianceBox(splat, unitBox2, radiance/splat.area())
	}

	if d.config.BsdfSamplingFractionMode == BsdfSamplingFractionLearn && d.built && rec.Product > 0 {
		d.optimizationStep(rec)
	}
}

func isPositiveFinite(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}

// hasData reports whether the snapshot can drive sampling
func (d *DTree) hasData() bool {
	return d.previousSampleWeight > 0 && d.root.RadianceSum() > 0
}

// Sample draws a direction proportionally to the learned radiance, or
// uniformly over the sphere while nothing has been learned.
func (d *DTree) Sample(sampler core.Sampler) DTreeSample {
	s := sampler.Get2D()
	if !d.hasData() {
		return DTreeSample{
			Direction: core.SampleOnUnitSphere(s),
			Pdf:       core.UniformSpherePDF,
		}
	}

	pdf := 1.0
	direction := d.root.Sample(s, &pdf)
	return DTreeSample{
		Direction: CylindricalToCartesian(direction),
		Pdf:       pdf,
	}
}

// Pdf returns the solid angle density Sample assigns to direction
func (d *DTree) Pdf(direction core.Vec3) float64 {
	if !d.hasData() {
		return core.UniformSpherePDF
	}
	return d.root.Pdf(CartesianToCylindrical(direction))
}

// Build snapshots the sample weight and radiance sums of the pass that just ended
func (d *DTree) Build() {
	d.previousSampleWeight = d.currentSampleWeight.Load()
	d.root.BuildRadianceSums()
}

// Restructure adapts the quadtree to the snapshot and starts a new pass
func (d *DTree) Restructure(threshold float64) {
	d.root.Restructure(d.root.RadianceSum(), threshold, 1, d.config.DTreeMaxDepth)
	d.currentSampleWeight.Store(0)
	d.built = true
}

// HalveSampleWeight decays the statistics inherited by a freshly split region
func (d *DTree) HalveSampleWeight() {
	d.currentSampleWeight.Store(0.5 * d.currentSampleWeight.Load())
	d.previousSampleWeight *= 0.5
}

// SampleWeight returns the snapshot of the accumulated statistical weight
func (d *DTree) SampleWeight() float64 {
	return d.previousSampleWeight
}

// Mean returns the average recorded radiance per unit solid angle
func (d *DTree) Mean() float64 {
	if d.previousSampleWeight <= 0 {
		return 0
	}
	return d.root.RadianceSum() * (1 / d.previousSampleWeight) * core.UniformSpherePDF
}

// Root exposes the quadtree for inspection
func (d *DTree) Root() *DirectionalNode {
	return d.root
}

// NodeCount returns the number of quadtree nodes
func (d *DTree) NodeCount() int {
	return d.root.NodeCount()
}

// MaxDepth returns the depth of the deepest quadtree leaf
func (d *DTree) MaxDepth() int {
	return d.root.MaxDepth()
}

// Depth returns the depth of the leaf containing a cylindrical direction
func (d *DTree) Depth(direction core.Vec2) int {
	return d.root.Depth(direction)
}

// IsBuilt reports whether Restructure has run at least once
func (d *DTree) IsBuilt() bool {
	return d.built
}

// Theta returns the current logit of the learned sampling fraction
func (d *DTree) Theta() float64 {
	return d.theta.Load()
}

// BsdfSamplingFraction returns the probability of sampling the BSDF instead of the tree
func (d *DTree) BsdfSamplingFraction() float64 {
	if d.config.BsdfSamplingFractionMode == BsdfSamplingFractionLearn {
		return logistic(d.theta.Load())
	}
	return d.config.FixedBsdfSamplingFraction
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// optimizationStep descends the variance gradient w.r.t. theta
// ("Practical Path Guiding in Production", Müller 2019, algorithm 3).
func (d *DTree) optimizationStep(rec Record) {
	d.lock.Lock()
	defer d.lock.Unlock()

	theta := d.theta.Load()
	fraction := logistic(theta)
	combinedPdf := fraction*rec.BsdfPdf + (1-fraction)*rec.DTreePdf

	dFraction := -rec.Product * (rec.BsdfPdf - rec.DTreePdf) / (rec.WiPdf * combinedPdf)
	dTheta := dFraction * fraction * (1 - fraction)
	regularization := theta * d.config.Adam.Regularization
	gradient := (dTheta + regularization) * rec.SampleWeight

	d.theta.Store(d.adamStep(theta, gradient))
}

// adamStep returns the updated theta. Caller holds the lock.
func (d *DTree) adamStep(theta, gradient float64) float64 {
	if math.IsNaN(gradient) || math.IsInf(gradient, 0) {
		return theta
	}

	adam := d.config.Adam
	opt := &d.optimizer
	opt.steps++
	steps := float64(opt.steps)
	learningRate := d.config.LearningRate *
		math.Sqrt(1-math.Pow(adam.Beta2, steps)) /
		(1 - math.Pow(adam.Beta1, steps))

	opt.firstMoment = adam.Beta1*opt.firstMoment + (1-adam.Beta1)*gradient
	opt.secondMoment = adam.Beta2*opt.secondMoment + (1-adam.Beta2)*gradient*gradient
	theta -= learningRate * opt.firstMoment / (math.Sqrt(opt.secondMoment) + adam.Epsilon)

	return min(max(theta, -adam.ThetaLimit), adam.ThetaLimit)
}
