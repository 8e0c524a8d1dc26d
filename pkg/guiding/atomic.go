package guiding

import (
	"math"
	"runtime"
	"sync/atomic"
)

// atomicFloat is a float64 accumulator safe for concurrent Add
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(value float64) {
	f.bits.Store(math.Float64bits(value))
}

// Add retries the compare-and-swap until no other writer intervened
func (f *atomicFloat) Add(delta float64) {
	for {
		old := f.bits.Load()
		sum := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, sum) {
			return
		}
	}
}

// spinLock is a busy-wait mutex for very short critical sections
type spinLock struct {
	held atomic.Bool
}

func (l *spinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	l.held.Store(false)
}
