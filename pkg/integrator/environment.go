package integrator

import (
	"math"

	"github.com/df07/go-path-guiding/pkg/core"
)

// Environment is distant lighting: a vertical sky gradient plus a soft sun lobe
type Environment struct {
	TopColor     core.Vec3 // Sky radiance straight up
	BottomColor  core.Vec3 // Sky radiance straight down
	SunDirection core.Vec3 // Unit direction toward the sun
	SunColor     core.Vec3
	SunExponent  float64 // Larger values give a smaller, sharper sun
}

// DefaultEnvironment returns a blue sky with a bright low sun
func DefaultEnvironment() Environment {
	return Environment{
		TopColor:     core.NewVec3(0.5, 0.7, 1.0),
		BottomColor:  core.NewVec3(0.1, 0.1, 0.1),
		SunDirection: core.NewVec3(1, 1, 0.5).Normalize(),
		SunColor:     core.NewVec3(50, 45, 40),
		SunExponent:  256,
	}
}

// Radiance returns the radiance arriving from direction
func (e Environment) Radiance(direction core.Vec3) core.Vec3 {
	unitDirection := direction.Normalize()

	// Map y from [-1,1] to [0,1] and blend bottom to top
	t := 0.5 * (unitDirection.Y + 1.0)
	sky := e.BottomColor.Multiply(1.0 - t).Add(e.TopColor.Multiply(t))

	cosine := unitDirection.Dot(e.SunDirection)
	if cosine <= 0 {
		return sky
	}
	return sky.Add(e.SunColor.Multiply(math.Pow(cosine, e.SunExponent)))
}
