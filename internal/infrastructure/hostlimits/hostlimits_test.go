package hostlimits

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestDetector(t *testing.T, goLimit int64) (*Detector, string) {
	t.Helper()
	root := t.TempDir()
	return &Detector{cgroupRoot: root, goLimit: func() int64 { return goLimit }}, root
}

func TestDetector_Sources(t *testing.T) {
	t.Run("config wins", func(t *testing.T) {
		d, root := newTestDetector(t, 1<<30)
		writeFile(t, filepath.Join(root, "memory.max"), "268435456\n")

		l := d.Detect(2<<30, 0)
		assert.Equal(t, uint64(2<<30), l.MemoryLimit)
		assert.Equal(t, SourceConfig, l.Source)
		assert.Equal(t, 50, l.BatchSize)
	})

	t.Run("cgroup v2", func(t *testing.T) {
		d, root := newTestDetector(t, math.MaxInt64)
		writeFile(t, filepath.Join(root, "memory.max"), "268435456\n")

		l := d.Detect(0, 0)
		assert.Equal(t, uint64(256<<20), l.MemoryLimit)
		assert.Equal(t, SourceCgroupV2, l.Source)
		assert.Equal(t, 10, l.BatchSize)
	})

	t.Run("cgroup v2 max falls through to v1", func(t *testing.T) {
		d, root := newTestDetector(t, math.MaxInt64)
		writeFile(t, filepath.Join(root, "memory.max"), "max\n")
		writeFile(t, filepath.Join(root, "memory", "memory.limit_in_bytes"), "536870912")

		l := d.Detect(0, 0)
		assert.Equal(t, uint64(512<<20), l.MemoryLimit)
		assert.Equal(t, SourceCgroupV1, l.Source)
		assert.Equal(t, 25, l.BatchSize)
	})

	t.Run("v1 unlimited sentinel falls through to GOMEMLIMIT", func(t *testing.T) {
		d, root := newTestDetector(t, 3<<30)
		writeFile(t, filepath.Join(root, "memory", "memory.limit_in_bytes"), "9223372036854771712")

		l := d.Detect(0, 0)
		assert.Equal(t, uint64(3<<30), l.MemoryLimit)
		assert.Equal(t, SourceGoLimit, l.Source)
	})

	t.Run("default when nothing is set", func(t *testing.T) {
		d, _ := newTestDetector(t, math.MaxInt64)

		l := d.Detect(0, 0)
		assert.Equal(t, DefaultMemoryLimit, l.MemoryLimit)
		assert.Equal(t, SourceDefault, l.Source)
		assert.Equal(t, 25, l.BatchSize)
	})

	t.Run("configured batch size overrides derived", func(t *testing.T) {
		d, _ := newTestDetector(t, math.MaxInt64)
		assert.Equal(t, 7, d.Detect(0, 7).BatchSize)
	})

	t.Run("garbage in cgroup file is ignored", func(t *testing.T) {
		d, root := newTestDetector(t, math.MaxInt64)
		writeFile(t, filepath.Join(root, "memory.max"), "lots")
		assert.Equal(t, SourceDefault, d.Detect(0, 0).Source)
	})
}

func TestDefaultBatchSize(t *testing.T) {
	tests := []struct {
		limit uint64
		want  int
	}{
		{limit: 128 << 20, want: 10},
		{limit: 256 << 20, want: 10},
		{limit: 256<<20 + 1, want: 25},
		{limit: 1 << 30, want: 25},
		{limit: 1<<30 + 1, want: 50},
		{limit: 8 << 30, want: 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultBatchSize(tt.limit), tt.limit)
	}
}

func TestProcessMeter(t *testing.T) {
	m := NewProcessMeter(nil)
	assert.Greater(t, m.MemoryInUse(), uint64(0))

	fallback := &ProcessMeter{fallback: func() uint64 { return 42 }}
	assert.Equal(t, uint64(42), fallback.MemoryInUse())

	assert.Greater(t, RuntimeMemory(), uint64(0))
}

func TestNewDetector(t *testing.T) {
	d := NewDetector()
	assert.Equal(t, "/sys/fs/cgroup", d.cgroupRoot)
	l := d.Detect(0, 0)
	assert.NotZero(t, l.MemoryLimit)
	assert.NotZero(t, l.BatchSize)
}
