package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSchedulerNotRunning is returned by Enqueue and Start once the
	// continuation scheduler has been stopped
	ErrSchedulerNotRunning = errors.New("scheduler: stopped")

	// ErrInvalidConfig is wrapped by every configuration error
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")
)

// setting names one configuration value for checkNonNegative
type setting struct {
	name  string
	value int64
}

func durationSetting(name string, d time.Duration) setting { return setting{name: name, value: int64(d)} }

func intSetting(name string, v int) setting { return setting{name: name, value: int64(v)} }

// checkNonNegative reports the first negative setting. Zero is allowed and
// means "use the default".
func checkNonNegative(settings ...setting) error {
	for _, s := range settings {
		if s.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, s.name)
		}
	}
	return nil
}
