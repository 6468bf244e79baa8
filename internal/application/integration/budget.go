package integration

import (
	"runtime"
	"time"
)

// DefaultMemoryFraction is the share of the memory limit a slice may reach
const DefaultMemoryFraction = 0.8

// ResourceMeter reports process memory in use, in bytes.
type ResourceMeter interface {
	MemoryInUse() uint64
}

// RuntimeMeter reads memory from the Go runtime.
type RuntimeMeter struct{}

// MemoryInUse returns the bytes of memory obtained from the OS
func (RuntimeMeter) MemoryInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys - m.HeapReleased
}

// SliceBudget bounds a single slice execution.
// A zero TimeBudget or MemoryLimit disables that bound.
type SliceBudget struct {
	TimeBudget     time.Duration
	MemoryLimit    uint64
	MemoryFraction float64
}

// ShouldStop is true iff elapsed reached the time budget or memory in use
// reached MemoryFraction of the limit.
func (b SliceBudget) ShouldStop(elapsed time.Duration, memUsed uint64) bool {
	if b.TimeBudget > 0 && elapsed >= b.TimeBudget {
		return true
	}
	if b.MemoryLimit == 0 {
		return false
	}
	fraction := b.MemoryFraction
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultMemoryFraction
	}
	return float64(memUsed) >= fraction*float64(b.MemoryLimit)
}
