package core

import (
	"math"
	"math/rand"
	"testing"
)

func TestSampleOnUnitSphere(t *testing.T) {
	random := rand.New(rand.NewSource(42))
	sampler := NewRandomSampler(random)

	var mean Vec3
	const n = 20000
	for i := 0; i < n; i++ {
		d := SampleOnUnitSphere(sampler.Get2D())
		if math.Abs(d.Length()-1.0) > 1e-9 {
			t.Fatalf("Sample %d is not unit length: %v", i, d)
		}
		mean = mean.Add(d)
	}

	mean = mean.Multiply(1.0 / n)
	if mean.Length() > 0.03 {
		t.Errorf("Uniform sphere samples should average near zero, got %v", mean)
	}
}

func TestSampleOnUnitSphere_PolarAxis(t *testing.T) {
	top := SampleOnUnitSphere(NewVec2(0.3, 0))
	if math.Abs(top.Y-1.0) > 1e-12 {
		t.Errorf("sample.Y = 0 should map to +Y, got %v", top)
	}
	bottom := SampleOnUnitSphere(NewVec2(0.3, 1))
	if math.Abs(bottom.Y+1.0) > 1e-12 {
		t.Errorf("sample.Y = 1 should map to -Y, got %v", bottom)
	}
}

func TestSampleCosineHemisphere(t *testing.T) {
	normal := NewVec3(0, 1, 0)
	sampler := NewRandomSampler(rand.New(rand.NewSource(7)))

	for i := 0; i < 1000; i++ {
		d := SampleCosineHemisphere(normal, sampler.Get2D())
		if d.Dot(normal) < 0 {
			t.Fatalf("Direction %v is below the surface", d)
		}
		pdf := CosineHemispherePDF(normal, d)
		if math.Abs(pdf-d.Dot(normal)/math.Pi) > 1e-12 {
			t.Fatalf("PDF mismatch for %v: %f", d, pdf)
		}
	}

	if CosineHemispherePDF(normal, NewVec3(0, -1, 0)) != 0 {
		t.Errorf("Directions below the surface must have zero density")
	}
}
