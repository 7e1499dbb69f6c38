package scheduler

import (
	"runtime"

	"github.com/rs/zerolog"
)

// DefaultPool is the pool systems land in without InPool
const DefaultPool = 50

type SystemConfig struct {
	Pool        int
	IgnorePause bool
	MainThread  bool
	Origin      string
}

func buildSystemConfig(opts []SystemOption) SystemConfig {
	config := SystemConfig{Pool: DefaultPool}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

type SystemOption func(*SystemConfig)

// InPool places a frame system in pool index. Lower pools run first.
func InPool(index int) SystemOption {
	return func(config *SystemConfig) {
		config.Pool = index
	}
}

// IgnorePause keeps the system running while the scheduler is paused
func IgnorePause() SystemOption {
	return func(config *SystemConfig) {
		config.IgnorePause = true
	}
}

// ExecuteInMainThread runs the system on the goroutine driving the frame
func ExecuteInMainThread() SystemOption {
	return func(config *SystemConfig) {
		config.MainThread = true
	}
}

// FromOrigin tags the system so UnloadOrigin can remove it
func FromOrigin(origin string) SystemOption {
	return func(config *SystemConfig) {
		config.Origin = origin
	}
}

type Option func(*Scheduler)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithParallelism bounds the number of systems of one pool running at once.
// Values below one mean GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(s *Scheduler) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		s.parallelism = n
	}
}

// WithPaused sets the initial pause flag
func WithPaused(paused bool) Option {
	return func(s *Scheduler) {
		s.paused = paused
	}
}
