package guiding

import (
	"strings"
	"sync"
	"testing"
)

func TestParseFilters(t *testing.T) {
	spatial := []struct {
		input    string
		expected SpatialFilter
	}{
		{"nearest", SpatialFilterNearest},
		{"Stochastic", SpatialFilterStochastic},
		{"BOX", SpatialFilterBox},
	}
	for _, tt := range spatial {
		got, err := ParseSpatialFilter(tt.input)
		if err != nil || got != tt.expected {
			t.Errorf("ParseSpatialFilter(%q) = %v, %v", tt.input, got, err)
		}
		if got.String() != strings.ToLower(tt.input) {
			t.Errorf("Expected %q to round trip, got %q", tt.input, got.String())
		}
	}

	if _, err := ParseSpatialFilter("gaussian"); err == nil {
		t.Errorf("Expected an error for an unknown spatial filter")
	}
	if _, err := ParseDirectionalFilter("stochastic"); err == nil {
		t.Errorf("Stochastic filtering is spatial only")
	}
	if got, err := ParseDirectionalFilter("box"); err != nil || got != DirectionalFilterBox {
		t.Errorf("ParseDirectionalFilter(box) = %v, %v", got, err)
	}
	if got, err := ParseBsdfSamplingFractionMode("fixed"); err != nil || got != BsdfSamplingFractionFixed {
		t.Errorf("ParseBsdfSamplingFractionMode(fixed) = %v, %v", got, err)
	}
	if _, err := ParseBsdfSamplingFractionMode("auto"); err == nil {
		t.Errorf("Expected an error for an unknown fraction mode")
	}
	if s := SpatialFilter(7).String(); s != "SpatialFilter(7)" {
		t.Errorf("Unexpected name for an invalid filter: %q", s)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"fraction above one", func(c *Config) { c.FixedBsdfSamplingFraction = 1.1 }, "fixed bsdf sampling fraction"},
		{"negative fraction", func(c *Config) { c.FixedBsdfSamplingFraction = -0.1 }, "fixed bsdf sampling fraction"},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }, "learning rate"},
		{"no samples", func(c *Config) { c.SamplesPerPass = 0 }, "samples per pass"},
		{"zero subdivision threshold", func(c *Config) { c.SpatialSubdivisionThreshold = 0 }, "spatial subdivision"},
		{"threshold of one", func(c *Config) { c.DTreeThreshold = 1 }, "directional threshold"},
		{"zero depth", func(c *Config) { c.DTreeMaxDepth = 0 }, "max depth"},
		{"zero theta limit", func(c *Config) { c.Adam.ThetaLimit = 0 }, "theta limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			err := config.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestAtomicFloatConcurrentAdd(t *testing.T) {
	var f atomicFloat
	const workers = 8
	const adds = 5000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < adds; i++ {
				f.Add(0.5)
			}
		}()
	}
	wg.Wait()

	if got := f.Load(); got != workers*adds*0.5 {
		t.Errorf("Expected %f, got %f", workers*adds*0.5, got)
	}
}

func TestSpinLockSerializes(t *testing.T) {
	var lock spinLock
	counter := 0 // Plain int, only safe under the lock
	const workers = 8
	const increments = 2000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != workers*increments {
		t.Errorf("Expected %d, got %d", workers*increments, counter)
	}
}
