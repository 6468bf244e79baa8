// Package hostlimits derives the memory budget a sync slice runs under and
// measures the memory the process uses.
package hostlimits

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// DefaultMemoryLimit applies when neither config, cgroup nor GOMEMLIMIT set one
const DefaultMemoryLimit uint64 = 512 << 20

// Limit sources reported in Limits.Source
const (
	SourceConfig   = "config"
	SourceCgroupV2 = "cgroup_v2"
	SourceCgroupV1 = "cgroup_v1"
	SourceGoLimit  = "gomemlimit"
	SourceDefault  = "default"
)

// cgroup v1 reports "unlimited" as a page-aligned value close to MaxInt64
const cgroupV1Unlimited uint64 = 1 << 62

var errUnlimited = errors.New("no memory limit")

// Limits is the detected memory limit and the batch size it implies
type Limits struct {
	MemoryLimit uint64
	Source      string
	BatchSize   int
}

// Detector reads memory limits from the host
type Detector struct {
	cgroupRoot string
	goLimit    func() int64
}

// NewDetector creates a Detector reading the standard cgroup mount
func NewDetector() *Detector {
	return &Detector{
		cgroupRoot: "/sys/fs/cgroup",
		goLimit:    func() int64 { return debug.SetMemoryLimit(-1) },
	}
}

// Detect resolves the memory limit. A non-zero configured value wins; then
// the cgroup v2 and v1 limits; then the Go runtime soft limit when set;
// then DefaultMemoryLimit. configuredBatch overrides the derived batch size
// when positive.
func (d *Detector) Detect(configured uint64, configuredBatch int) Limits {
	limit, source := d.memoryLimit(configured)
	batch := DefaultBatchSize(limit)
	if configuredBatch > 0 {
		batch = configuredBatch
	}
	return Limits{MemoryLimit: limit, Source: source, BatchSize: batch}
}

func (d *Detector) memoryLimit(configured uint64) (uint64, string) {
	if configured > 0 {
		return configured, SourceConfig
	}
	if v, err := readCgroupLimit(filepath.Join(d.cgroupRoot, "memory.max")); err == nil {
		return v, SourceCgroupV2
	}
	if v, err := readCgroupLimit(filepath.Join(d.cgroupRoot, "memory", "memory.limit_in_bytes")); err == nil {
		return v, SourceCgroupV1
	}
	if d.goLimit != nil {
		if v := d.goLimit(); v > 0 && v != math.MaxInt64 {
			return uint64(v), SourceGoLimit
		}
	}
	return DefaultMemoryLimit, SourceDefault
}

// readCgroupLimit parses a cgroup memory limit file. "max" and the v1
// unlimited sentinel yield errUnlimited.
func readCgroupLimit(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(raw))
	if text == "max" {
		return 0, errUnlimited
	}
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, err
	}
	if v == 0 || v >= cgroupV1Unlimited {
		return 0, errUnlimited
	}
	return v, nil
}

// DefaultBatchSize scales the slice size with the memory limit:
// up to 256 MiB gives 10, up to 1 GiB gives 25, anything larger 50.
func DefaultBatchSize(memoryLimit uint64) int {
	switch {
	case memoryLimit <= 256<<20:
		return 10
	case memoryLimit <= 1<<30:
		return 25
	default:
		return 50
	}
}

// Log reports the resolved limits once at startup
func (l Limits) Log(logger *zap.Logger) {
	logger.Info("Resolved sync resource limits",
		zap.Uint64("memory_limit_bytes", l.MemoryLimit),
		zap.String("source", l.Source),
		zap.Int("batch_size", l.BatchSize),
	)
}

// ---------------------------------------------------------------------------
// Meters
// ---------------------------------------------------------------------------

// RuntimeMemory returns the bytes obtained from the OS and not yet returned
func RuntimeMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys - ms.HeapReleased
}

// ProcessMeter reports the resident set size of the current process. When
// the RSS cannot be read it falls back to RuntimeMemory.
type ProcessMeter struct {
	proc     *process.Process
	fallback func() uint64
}

// NewProcessMeter creates a meter for the running process. It never fails;
// a process handle that cannot be opened leaves only the fallback.
func NewProcessMeter(logger *zap.Logger) *ProcessMeter {
	m := &ProcessMeter{fallback: RuntimeMemory}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		if logger != nil {
			logger.Warn("Process memory unavailable, using runtime stats", zap.Error(err))
		}
		return m
	}
	m.proc = proc
	return m
}

// MemoryInUse returns the current RSS in bytes
func (m *ProcessMeter) MemoryInUse() uint64 {
	if m.proc != nil {
		if info, err := m.proc.MemoryInfo(); err == nil && info.RSS > 0 {
			return info.RSS
		}
	}
	return m.fallback()
}
