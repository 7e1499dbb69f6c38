package orchard

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Config holds global configuration for every world in the process
var Config config = config{
	logger:      zerolog.Nop(),
	parallelism: runtime.GOMAXPROCS(0),
}

type config struct {
	mu          sync.RWMutex
	logger      zerolog.Logger
	parallelism int
}

// SetLogger configures the logger used for storage and query diagnostics
func (c *config) SetLogger(logger zerolog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// Logger returns the configured logger
func (c *config) Logger() zerolog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// SetParallelism bounds the number of workers used by parallel iteration.
// Values below one reset it to GOMAXPROCS.
func (c *config) SetParallelism(n int) {
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parallelism = n
}

// Parallelism returns the worker bound for parallel iteration
func (c *config) Parallelism() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parallelism
}
