package integrator

import (
	"math"

	"github.com/df07/go-path-guiding/pkg/core"
)

// Quad is a one-sided Lambertian rectangle defined by a corner and two edge vectors
type Quad struct {
	Corner core.Vec3
	U      core.Vec3
	V      core.Vec3
	Normal core.Vec3 // U × V, normalized
	Albedo core.Vec3
	d      float64   // Plane equation constant: normal · p = d
	w      core.Vec3 // Cached for barycentric coordinates
}

// NewQuad creates a quad whose front face points along u × v
func NewQuad(corner, u, v, albedo core.Vec3) Quad {
	cross := u.Cross(v)
	normal := cross.Normalize()
	return Quad{
		Corner: corner,
		U:      u,
		V:      v,
		Normal: normal,
		Albedo: albedo,
		d:      normal.Dot(corner),
		w:      normal.Multiply(1.0 / normal.Dot(cross)),
	}
}

// Area returns the surface area of the quad
func (q Quad) Area() float64 {
	return q.U.Cross(q.V).Length()
}

// PointAt maps (alpha, beta) in [0,1]² onto the quad
func (q Quad) PointAt(alpha, beta float64) core.Vec3 {
	return q.Corner.Add(q.U.Multiply(alpha)).Add(q.V.Multiply(beta))
}

// Hit returns the ray parameter of the intersection within [tMin, tMax]
func (q Quad) Hit(ray core.Ray, tMin, tMax float64) (float64, bool) {
	denominator := ray.Direction.Dot(q.Normal)
	if math.Abs(denominator) < 1e-8 {
		return 0, false
	}

	t := (q.d - ray.Origin.Dot(q.Normal)) / denominator
	if t < tMin || t > tMax {
		return 0, false
	}

	hitVector := ray.At(t).Subtract(q.Corner)
	alpha := q.w.Dot(hitVector.Cross(q.V))
	beta := q.w.Dot(q.U.Cross(hitVector))
	if alpha < 0 || alpha > 1 || beta < 0 || beta > 1 {
		return 0, false
	}
	return t, true
}

// HitRecord describes the closest intersection along a ray
type HitRecord struct {
	T         float64
	Point     core.Vec3
	Quad      *Quad
	FrontFace bool
}

// Scene is a set of diffuse quads lit only by the environment
type Scene struct {
	Environment Environment
	Quads       []Quad
	totalArea   float64
}

// NewScene creates a scene from the given quads
func NewScene(environment Environment, quads ...Quad) *Scene {
	s := &Scene{Environment: environment, Quads: quads}
	for _, q := range quads {
		s.totalArea += q.Area()
	}
	return s
}

// NewCanopyScene returns a ground quad half covered by a raised canopy.
// The covered half only sees light bounced off the ground, the open half sees the sky.
func NewCanopyScene() *Scene {
	ground := NewQuad(core.NewVec3(-5, 0, -5), core.NewVec3(0, 0, 10), core.NewVec3(10, 0, 0), core.NewVec3(0.7, 0.7, 0.7))
	canopy := NewQuad(core.NewVec3(-5, 2, -5), core.NewVec3(5, 0, 0), core.NewVec3(0, 0, 10), core.NewVec3(0.5, 0.4, 0.3))
	return NewScene(DefaultEnvironment(), ground, canopy)
}

// NewFurnaceScene returns an open ground quad under a constant white sky.
// Every path estimate has expectation albedo, which makes bias easy to spot.
func NewFurnaceScene(albedo float64) *Scene {
	environment := Environment{
		TopColor:     core.Splat(1),
		BottomColor:  core.Splat(1),
		SunDirection: core.NewVec3(0, 1, 0),
	}
	ground := NewQuad(core.NewVec3(-1, 0, -1), core.NewVec3(0, 0, 2), core.NewVec3(2, 0, 0), core.Splat(albedo))
	return NewScene(environment, ground)
}

// Bounds returns the box enclosing every quad
func (s *Scene) Bounds() core.AABB {
	var points []core.Vec3
	for _, q := range s.Quads {
		points = append(points, q.PointAt(0, 0), q.PointAt(1, 0), q.PointAt(0, 1), q.PointAt(1, 1))
	}
	return core.NewAABBFromPoints(points...)
}

// Hit finds the closest quad along ray
func (s *Scene) Hit(ray core.Ray, tMin, tMax float64) (HitRecord, bool) {
	var closest HitRecord
	found := false
	for i := range s.Quads {
		if t, ok := s.Quads[i].Hit(ray, tMin, tMax); ok {
			tMax = t
			closest = HitRecord{T: t, Point: ray.At(t), Quad: &s.Quads[i]}
			found = true
		}
	}
	if found {
		closest.FrontFace = ray.Direction.Dot(closest.Quad.Normal) < 0
	}
	return closest, found
}

// SamplePoint picks a point uniformly by area over all quads
func (s *Scene) SamplePoint(sample core.Vec3) (core.Vec3, *Quad) {
	target := sample.X * s.totalArea
	for i := range s.Quads {
		q := &s.Quads[i]
		area := q.Area()
		if target < area || i == len(s.Quads)-1 {
			return q.PointAt(sample.Y, sample.Z), q
		}
		target -= area
	}
	return core.Vec3{}, nil
}
