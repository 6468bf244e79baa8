package telemetry

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig configures continuous profiling against a Pyroscope server
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []pyroscope.ProfileType
}

var (
	errProfilerServer      = errors.New("profiler: server address is required")
	errProfilerApplication = errors.New("profiler: application name is required")
)

// defaultProfileTypes are collected when ProfilerConfig.ProfileTypes is empty.
// Goroutine profiles show slice workers stuck on slow storefronts.
var defaultProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

// Profiler pushes profiles until Stop
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	stopOnce sync.Once
	stopErr  error
}

// NewProfiler starts profiling. A disabled config yields a Profiler whose
// Stop does nothing.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("Profiling disabled")
		return &Profiler{logger: logger}, nil
	}
	switch {
	case cfg.ServerAddress == "":
		return nil, errProfilerServer
	case cfg.ApplicationName == "":
		return nil, errProfilerApplication
	}

	types := cfg.ProfileTypes
	if len(types) == 0 {
		types = defaultProfileTypes
	}
	started, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            pyroscopeLogger{logger.Named("pyroscope").Sugar()},
		Tags:              hostTags(),
		ProfileTypes:      types,
	})
	if err != nil {
		return nil, fmt.Errorf("start profiler: %w", err)
	}

	logger.Info("Profiling enabled",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
	)
	return &Profiler{profiler: started, logger: logger}, nil
}

// hostTags identifies the replica in Pyroscope
func hostTags() map[string]string {
	tags := map[string]string{}
	for tag, env := range map[string]string{"hostname": "HOSTNAME", "pod": "POD_NAME"} {
		if v := os.Getenv(env); v != "" {
			tags[tag] = v
		}
	}
	return tags
}

// IsEnabled reports whether profiles are being pushed
func (p *Profiler) IsEnabled() bool {
	return p.profiler != nil
}

// Stop flushes pending profiles. Later calls return the first result.
func (p *Profiler) Stop() error {
	p.stopOnce.Do(func() {
		if p.profiler == nil {
			return
		}
		if err := p.profiler.Stop(); err != nil {
			p.logger.Error("Failed to stop profiler", zap.Error(err))
			p.stopErr = fmt.Errorf("stop profiler: %w", err)
		}
	})
	return p.stopErr
}

// pyroscopeLogger satisfies pyroscope.Logger with the sugared Infof, Debugf
// and Errorf methods
type pyroscopeLogger struct {
	*zap.SugaredLogger
}
