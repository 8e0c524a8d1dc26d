package guiding

import (
	"math"

	"github.com/df07/go-path-guiding/pkg/core"
)

// CylindricalToCartesian maps a point of [0,1)² to a unit direction.
// X is the azimuth around the Y axis, Y runs from +Y (0) to -Y (1).
func CylindricalToCartesian(cylindrical core.Vec2) core.Vec3 {
	return core.SampleOnUnitSphere(cylindrical)
}

// CartesianToCylindrical is the inverse of CylindricalToCartesian
func CartesianToCylindrical(direction core.Vec3) core.Vec2 {
	cosTheta := direction.Y
	phi := math.Atan2(direction.Z, direction.X)
	if phi < 0 {
		phi = math.Max(phi+2*math.Pi, 0)
	}
	return core.NewVec2(phi/(2*math.Pi), 1-0.5*(cosTheta+1))
}

// box2 is an axis-aligned box in cylindrical coordinates
type box2 struct {
	Min, Max core.Vec2
}

var unitBox2 = box2{Min: core.NewVec2(0, 0), Max: core.NewVec2(1, 1)}

func boxAround(center core.Vec2, size float64) box2 {
	half := core.NewVec2(0.5*size, 0.5*size)
	return box2{Min: center.Subtract(half), Max: center.Add(half)}
}

func (b box2) intersect(other box2) box2 {
	return box2{
		Min: core.NewVec2(math.Max(b.Min.X, other.Min.X), math.Max(b.Min.Y, other.Min.Y)),
		Max: core.NewVec2(math.Min(b.Max.X, other.Max.X), math.Min(b.Max.Y, other.Max.Y)),
	}
}

func (b box2) isValid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y
}

func (b box2) area() float64 {
	return (b.Max.X - b.Min.X) * (b.Max.Y - b.Min.Y)
}

// quadrant returns the sub-box for child index i, see quadrantOffsets
func (b box2) quadrant(i int) box2 {
	half := b.Max.Subtract(b.Min).Multiply(0.5)
	offset := quadrantOffsets[i]
	min := core.NewVec2(b.Min.X+2*offset.X*half.X, b.Min.Y+2*offset.Y*half.Y)
	return box2{Min: min, Max: min.Add(half)}
}
