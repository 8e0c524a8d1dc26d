package integrator

import (
	"math"

	"github.com/df07/go-path-guiding/pkg/core"
	"github.com/df07/go-path-guiding/pkg/guiding"
)

// SamplingConfig contains path tracing configuration
type SamplingConfig struct {
	MaxDepth                  int // Maximum number of scattering events per path
	RussianRouletteMinBounces int // Minimum bounces before Russian Roulette can activate
}

// DefaultSamplingConfig returns sensible default values
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		MaxDepth:                  8,
		RussianRouletteMinBounces: 3,
	}
}

// PathSample is the outcome of tracing one path
type PathSample struct {
	Radiance core.Vec3 // Radiance leaving the start point, weighted by its sampling density
	Vertices int       // Vertices handed to the spatial tree
}

// GuidedIntegrator traces diffuse paths through a Scene, choosing each
// bounce direction from a one-sample mixture of cosine BSDF sampling and the
// SD tree, and feeds what it finds back into the tree.
type GuidedIntegrator struct {
	scene  *Scene
	tree   *guiding.STree
	config SamplingConfig
}

// NewGuidedIntegrator creates an integrator that learns into tree
func NewGuidedIntegrator(scene *Scene, tree *guiding.STree, config SamplingConfig) *GuidedIntegrator {
	return &GuidedIntegrator{
		scene:  scene,
		tree:   tree,
		config: config,
	}
}

// Scene returns the scene being traced
func (gi *GuidedIntegrator) Scene() *Scene {
	return gi.scene
}

// Tree returns the spatial tree being trained
func (gi *GuidedIntegrator) Tree() *guiding.STree {
	return gi.tree
}

// TracePath starts a path at a random surface point and follows it until it
// escapes, is absorbed or reaches MaxDepth. path is scratch storage owned by
// the calling worker.
func (gi *GuidedIntegrator) TracePath(sampler core.Sampler, path *guiding.VertexPath) PathSample {
	path.Reset()

	point, quad := gi.scene.SamplePoint(sampler.Get3D())
	if quad == nil {
		return PathSample{}
	}
	normal := quad.Normal
	albedo := quad.Albedo
	throughput := core.Splat(1)
	var radiance core.Vec3

	for depth := 0; depth < gi.config.MaxDepth; depth++ {
		shouldTerminate, rrCompensation := gi.applyRussianRoulette(depth, throughput, sampler)
		if shouldTerminate {
			break
		}
		throughput = throughput.Multiply(rrCompensation)

		dTree, voxelSize := gi.tree.GetDTree(point)
		scatter, ok := gi.sampleDirection(dTree, normal, sampler)
		if !ok {
			break
		}
		path.SetSamplingFraction(scatter.bsdfSamplingFraction)

		// Lambertian: f·cos = albedo/π · cos
		bsdfValue := albedo.Multiply(scatter.cosine / math.Pi)
		throughput = throughput.MultiplyVec(bsdfValue).Multiply(1 / scatter.wiPdf)

		path.AddVertex(guiding.Vertex{
			DTree:      dTree,
			VoxelSize:  voxelSize,
			Point:      point,
			Direction:  scatter.direction,
			Throughput: throughput,
			BsdfValue:  bsdfValue,
			BsdfPdf:    scatter.bsdfPdf,
			DTreePdf:   scatter.dTreePdf,
			WiPdf:      scatter.wiPdf,
		})

		ray := core.NewRay(point, scatter.direction)
		hit, isHit := gi.scene.Hit(ray, 0.001, math.Inf(1))
		if !isHit {
			contribution := throughput.MultiplyVec(gi.scene.Environment.Radiance(scatter.direction))
			path.AddRadiance(contribution)
			radiance = radiance.Add(contribution)
			break
		}
		if !hit.FrontFace {
			// Back faces absorb
			break
		}

		point = hit.Point
		normal = hit.Quad.Normal
		albedo = hit.Quad.Albedo
	}

	vertices := path.Len()
	if !gi.tree.IsFinalIteration() {
		path.RecordTo(gi.tree, 1, sampler)
	}
	return PathSample{Radiance: radiance, Vertices: vertices}
}

// scatterSample is one direction drawn from the BSDF/guide mixture
type scatterSample struct {
	direction            core.Vec3
	cosine               float64
	bsdfPdf              float64
	dTreePdf             float64
	wiPdf                float64 // Mixture density actually used
	bsdfSamplingFraction float64
}

// sampleDirection draws from the cosine lobe with probability equal to the
// tree's BSDF sampling fraction and from the DTree otherwise. Until the
// spatial tree has been built only the BSDF is sampled.
func (gi *GuidedIntegrator) sampleDirection(dTree *guiding.DTree, normal core.Vec3, sampler core.Sampler) (scatterSample, bool) {
	if !gi.tree.IsBuilt() {
		direction := core.SampleCosineHemisphere(normal, sampler.Get2D())
		pdf := core.CosineHemispherePDF(normal, direction)
		if pdf <= 0 {
			return scatterSample{}, false
		}
		return scatterSample{
			direction:            direction,
			cosine:               normal.Dot(direction),
			bsdfPdf:              pdf,
			dTreePdf:             0,
			wiPdf:                pdf,
			bsdfSamplingFraction: 1,
		}, true
	}

	fraction := dTree.BsdfSamplingFraction()
	var direction core.Vec3
	if sampler.Get1D() < fraction {
		direction = core.SampleCosineHemisphere(normal, sampler.Get2D())
	} else {
		direction = dTree.Sample(sampler).Direction
	}

	cosine := normal.Dot(direction)
	if cosine <= 0 {
		// Guide proposed a direction below the surface
		return scatterSample{}, false
	}

	bsdfPdf := core.CosineHemispherePDF(normal, direction)
	dTreePdf := dTree.Pdf(direction)
	wiPdf := fraction*bsdfPdf + (1-fraction)*dTreePdf
	if wiPdf <= 0 {
		return scatterSample{}, false
	}

	return scatterSample{
		direction:            direction,
		cosine:               cosine,
		bsdfPdf:              bsdfPdf,
		dTreePdf:             dTreePdf,
		wiPdf:                wiPdf,
		bsdfSamplingFraction: fraction,
	}, true
}

// applyRussianRoulette determines if a path should be terminated and returns the compensation factor
func (gi *GuidedIntegrator) applyRussianRoulette(depth int, throughput core.Vec3, sampler core.Sampler) (bool, float64) {
	if depth < gi.config.RussianRouletteMinBounces {
		return false, 1.0
	}

	// Survival probability between 0.5 and 0.95 keeps compensation within [1.05, 2]
	survivalProb := math.Min(0.95, math.Max(0.5, throughput.Luminance()))
	if sampler.Get1D() > survivalProb {
		return true, 0.0
	}
	return false, 1.0 / survivalProb
}
