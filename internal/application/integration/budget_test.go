package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSliceBudget_ShouldStop(t *testing.T) {
	tests := []struct {
		name    string
		budget  SliceBudget
		elapsed time.Duration
		mem     uint64
		want    bool
	}{
		{"unbounded", SliceBudget{}, time.Hour, 1 << 40, false},
		{"under time", SliceBudget{TimeBudget: time.Second}, 999 * time.Millisecond, 0, false},
		{"time reached", SliceBudget{TimeBudget: time.Second}, time.Second, 0, true},
		{"under memory", SliceBudget{MemoryLimit: 1000, MemoryFraction: 0.8}, 0, 799, false},
		{"memory reached", SliceBudget{MemoryLimit: 1000, MemoryFraction: 0.8}, 0, 800, true},
		{"default fraction", SliceBudget{MemoryLimit: 1000}, 0, 800, true},
		{"fraction above one uses default", SliceBudget{MemoryLimit: 1000, MemoryFraction: 1.5}, 0, 850, true},
		{"either bound stops", SliceBudget{TimeBudget: time.Minute, MemoryLimit: 1000}, time.Second, 900, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.budget.ShouldStop(tt.elapsed, tt.mem))
		})
	}
}

func TestRuntimeMeter(t *testing.T) {
	assert.Greater(t, RuntimeMeter{}.MemoryInUse(), uint64(0))
}
