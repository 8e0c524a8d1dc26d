package guiding

import (
	"github.com/df07/go-path-guiding/pkg/core"
)

// MaxGuidedVertices bounds how many vertices of a path are recorded
const MaxGuidedVertices = 32

// Vertex is the state of one non-specular path vertex needed to update the tree
type Vertex struct {
	DTree      *DTree    // Region covering Point
	VoxelSize  core.Vec3 // Size of that region
	Point      core.Vec3
	Direction  core.Vec3 // Sampled incident direction
	Throughput core.Vec3 // Path throughput up to and including this vertex's scattering
	BsdfValue  core.Vec3
	BsdfPdf    float64
	DTreePdf   float64
	WiPdf      float64 // Density Direction was sampled with
	IsDelta    bool
	Radiance   core.Vec3 // Radiance arriving at the camera through this vertex
}

// AddRadiance accumulates a contribution found further down the path
func (v *Vertex) AddRadiance(radiance core.Vec3) {
	v.Radiance = v.Radiance.Add(radiance)
}

// RecordTo converts the vertex into a Record and splats it into tree
func (v *Vertex) RecordTo(tree *STree, statisticalWeight float64, sampler core.Sampler) {
	if !(v.WiPdf > 0) || !v.Radiance.IsValidSpectrum() || !v.BsdfValue.IsValidSpectrum() {
		droppedRecords.WithLabelValues("spectrum").Inc()
		return
	}

	// Divide out the throughput to get the radiance incident at this vertex
	epsilon := tree.config.Epsilon
	var incoming core.Vec3
	for axis := 0; axis < 3; axis++ {
		if v.Throughput.Get(axis)*v.WiPdf > epsilon {
			incoming = incoming.With(axis, v.Radiance.Get(axis)/v.Throughput.Get(axis))
		}
	}
	product := incoming.MultiplyVec(v.BsdfValue)

	rec := Record{
		Direction:    v.Direction,
		Radiance:     incoming.Average(),
		WiPdf:        v.WiPdf,
		BsdfPdf:      v.BsdfPdf,
		DTreePdf:     v.DTreePdf,
		SampleWeight: statisticalWeight,
		Product:      product.Average(),
		IsDelta:      v.IsDelta,
	}
	tree.Record(v.DTree, v.Point, v.VoxelSize, rec, sampler)
}

// VertexPath collects the guided prefix of one path
type VertexPath struct {
	vertices         [MaxGuidedVertices]Vertex
	length           int
	samplingFraction float64
}

// AddVertex appends v unless the path is full
func (p *VertexPath) AddVertex(v Vertex) {
	if p.length < len(p.vertices) {
		p.vertices[p.length] = v
		p.length++
	}
}

// AddRadiance credits radiance to every vertex recorded so far
func (p *VertexPath) AddRadiance(radiance core.Vec3) {
	for i := 0; i < p.length; i++ {
		p.vertices[i].AddRadiance(radiance)
	}
}

// IsFull reports whether further vertices will be ignored
func (p *VertexPath) IsFull() bool {
	return p.length >= len(p.vertices)
}

// Len returns the number of recorded vertices
func (p *VertexPath) Len() int {
	return p.length
}

// Vertex returns the i-th recorded vertex
func (p *VertexPath) Vertex(i int) *Vertex {
	return &p.vertices[i]
}

// RecordTo records every vertex into tree
func (p *VertexPath) RecordTo(tree *STree, statisticalWeight float64, sampler core.Sampler) {
	for i := 0; i < p.length; i++ {
		p.vertices[i].RecordTo(tree, statisticalWeight, sampler)
	}
}

// Reset empties the path for reuse
func (p *VertexPath) Reset() {
	p.length = 0
}

func (p *VertexPath) SetSamplingFraction(fraction float64) {
	p.samplingFraction = fraction
}

func (p *VertexPath) SamplingFraction() float64 {
	return p.samplingFraction
}
