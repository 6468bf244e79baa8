package handler

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storesync/backend/internal/infrastructure/hostlimits"
)

// DefaultVersion is reported when the build carries no version
const DefaultVersion = "dev"

// ServiceName is the name reported by the info endpoint
const ServiceName = "StoreSync API"

// MemoryMeter reports the memory currently held by the process
type MemoryMeter interface {
	MemoryInUse() uint64
}

// SystemHandler serves build and runtime information about the engine
type SystemHandler struct {
	BaseHandler
	version   string
	limits    hostlimits.Limits
	meter     MemoryMeter
	startedAt time.Time
	now       func() time.Time
}

// NewSystemHandler creates a SystemHandler. meter may be nil, in which case
// memory in use is not reported.
func NewSystemHandler(version string, limits hostlimits.Limits, meter MemoryMeter) *SystemHandler {
	if version == "" {
		version = DefaultVersion
	}
	return &SystemHandler{
		version:   version,
		limits:    limits,
		meter:     meter,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// SystemInfoResponse describes the running engine
type SystemInfoResponse struct {
	Name      string `json:"name" example:"StoreSync API"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
	// MemoryLimit is the byte budget batch slices are sized against
	MemoryLimit       uint64 `json:"memory_limit" example:"536870912"`
	MemoryLimitSource string `json:"memory_limit_source" example:"cgroup_v2"`
	MemoryInUse       uint64 `json:"memory_in_use,omitempty" example:"73400320"`
	BatchSize         int    `json:"batch_size" example:"50"`
	GOMAXPROCS        int    `json:"gomaxprocs" example:"4"`
}

// GetSystemInfo handles GET /system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:              ServiceName,
		Version:           h.version,
		GoVersion:         runtime.Version(),
		Uptime:            h.now().Sub(h.startedAt).Round(time.Second).String(),
		MemoryLimit:       h.limits.MemoryLimit,
		MemoryLimitSource: h.limits.Source,
		BatchSize:         h.limits.BatchSize,
		GOMAXPROCS:        runtime.GOMAXPROCS(0),
	}
	if h.meter != nil {
		info.MemoryInUse = h.meter.MemoryInUse()
	}
	h.Success(c, info)
}

// PingResponse is the body of GET /system/ping
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping handles GET /system/ping. It needs no token.
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
