package core

import "math"

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min Vec3 // Minimum corner
	Max Vec3 // Maximum corner
}

// NewAABB creates a new AABB from min and max points
func NewAABB(min, max Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// NewAABBFromPoints creates an AABB that bounds all given points
func NewAABBFromPoints(points ...Vec3) AABB {
	if len(points) == 0 {
		return AABB{}
	}

	min := points[0]
	max := points[0]

	for _, point := range points[1:] {
		min.X = math.Min(min.X, point.X)
		min.Y = math.Min(min.Y, point.Y)
		min.Z = math.Min(min.Z, point.Z)

		max.X = math.Max(max.X, point.X)
		max.Y = math.Max(max.Y, point.Y)
		max.Z = math.Max(max.Z, point.Z)
	}

	return AABB{Min: min, Max: max}
}

// Intersect returns the overlap of two AABBs. The result is invalid when they are disjoint.
func (aabb AABB) Intersect(other AABB) AABB {
	min := Vec3{
		X: math.Max(aabb.Min.X, other.Min.X),
		Y: math.Max(aabb.Min.Y, other.Min.Y),
		Z: math.Max(aabb.Min.Z, other.Min.Z),
	}
	max := Vec3{
		X: math.Min(aabb.Max.X, other.Max.X),
		Y: math.Min(aabb.Max.Y, other.Max.Y),
		Z: math.Min(aabb.Max.Z, other.Max.Z),
	}
	return AABB{Min: min, Max: max}
}

// Size returns the size (extent) of the AABB along each axis
func (aabb AABB) Size() Vec3 {
	return aabb.Max.Subtract(aabb.Min)
}

// Volume returns the product of the extents
func (aabb AABB) Volume() float64 {
	size := aabb.Size()
	return size.X * size.Y * size.Z
}

// Cube returns the AABB grown along its shorter axes so every side equals the longest extent
func (aabb AABB) Cube() AABB {
	side := aabb.Size().MaxComponent()
	return AABB{Min: aabb.Min, Max: aabb.Min.Add(Splat(side))}
}

// Clip clamps a point to lie within the AABB
func (aabb AABB) Clip(point Vec3) Vec3 {
	return Vec3{
		X: min(max(point.X, aabb.Min.X), aabb.Max.X),
		Y: min(max(point.Y, aabb.Min.Y), aabb.Max.Y),
		Z: min(max(point.Z, aabb.Min.Z), aabb.Max.Z),
	}
}

// IsValid returns true if this is a valid AABB (min <= max for all axes)
func (aabb AABB) IsValid() bool {
	return aabb.Min.X <= aabb.Max.X &&
		aabb.Min.Y <= aabb.Max.Y &&
		aabb.Min.Z <= aabb.Max.Z
}
