// Package scheduler runs systems in numbered pools once per frame, with
// startup and teardown callbacks gated by a pause flag.
package scheduler

import (
	"maps"
	"runtime"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// SystemFunc is a frame system
type SystemFunc func() error

// Dispose undoes what a startup system set up
type Dispose func() error

// StartupFunc is a startup system. The returned Dispose may be nil.
type StartupFunc func() (Dispose, error)

type systemEntry struct {
	identifier string
	run        SystemFunc
	config     SystemConfig
}

type startupEntry struct {
	identifier string
	run        StartupFunc
	config     SystemConfig
}

type disposeEntry struct {
	identifier string
	run        Dispose
	config     SystemConfig
}

// Scheduler owns the frame pools, the startup pools and the pause flag.
// RunStart, RunFrame and RunEnd are meant to be driven from one goroutine;
// registration and SetPaused may be called from anywhere, including systems.
type Scheduler struct {
	mu    sync.Mutex
	pools map[int]*pool

	// startup systems running regardless of pause
	startupIgnorePause []startupEntry
	// startup systems running whenever the scheduler becomes unpaused
	startupUnpaused    []startupEntry
	disposeIgnorePause []disposeEntry
	disposeUnpaused    []disposeEntry

	paused    bool
	started   bool
	inFrame   bool
	inStartup bool
	// pause change requested while a frame or startup batch ran
	pendingPause *bool

	logger      zerolog.Logger
	parallelism int
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		pools:       make(map[int]*pool),
		logger:      zerolog.Nop(),
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) poolAt(index int) *pool {
	p, ok := s.pools[index]
	if !ok {
		p = &pool{enabled: true}
		s.pools[index] = p
	}
	return p
}

// AddSystem registers a frame system
func (s *Scheduler) AddSystem(identifier string, fn SystemFunc, opts ...SystemOption) {
	config := buildSystemConfig(opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.poolAt(config.Pool)
	p.systems = append(p.systems, systemEntry{identifier: identifier, run: fn, config: config})
	s.logger.Debug().Str("system", identifier).Int("pool", config.Pool).Msg("system added")
}

// AddStartupSystem registers a startup system. With IgnorePause it runs once
// at RunStart, otherwise every time the scheduler becomes unpaused.
func (s *Scheduler) AddStartupSystem(identifier string, fn StartupFunc, opts ...SystemOption) {
	config := buildSystemConfig(opts)
	entry := startupEntry{identifier: identifier, run: fn, config: config}
	s.mu.Lock()
	defer s.mu.Unlock()
	if config.IgnorePause {
		s.startupIgnorePause = append(s.startupIgnorePause, entry)
	} else {
		s.startupUnpaused = append(s.startupUnpaused, entry)
	}
	s.logger.Debug().Str("system", identifier).Bool("ignore_pause", config.IgnorePause).Msg("startup system added")
}

func (s *Scheduler) EnablePool(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolAt(index).enabled = true
}

func (s *Scheduler) DisablePool(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolAt(index).enabled = false
}

// RunFrame runs every enabled pool in index order. The first failing system
// aborts its pool and the frame. Pause changes requested during the frame
// are applied once it ends.
func (s *Scheduler) RunFrame() (err error) {
	s.mu.Lock()
	s.inFrame = true
	indices := slices.Sorted(maps.Keys(s.pools))
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFrame = false
		pending := s.takePending()
		s.mu.Unlock()
		if pending != nil {
			if perr := s.SetPaused(*pending); err == nil {
				err = perr
			}
		}
	}()

	for _, index := range indices {
		if err := s.runPool(index, true); err != nil {
			return err
		}
	}
	return nil
}

// RunPool runs one pool, enabled or not, honouring the pause flag
func (s *Scheduler) RunPool(index int) error {
	return s.runPool(index, false)
}

func (s *Scheduler) runPool(index int, onlyEnabled bool) error {
	s.mu.Lock()
	p, ok := s.pools[index]
	if !ok || (onlyEnabled && !p.enabled) {
		s.mu.Unlock()
		return nil
	}
	paused := s.paused
	tasks := make([]task, 0, len(p.systems))
	for _, sys := range p.systems {
		if paused && !sys.config.IgnorePause {
			continue
		}
		tasks = append(tasks, task{identifier: sys.identifier, mainThread: sys.config.MainThread, run: sys.run})
	}
	s.mu.Unlock()

	if err := s.runBatch(tasks); err != nil {
		return eris.Wrapf(err, "pool %d failed", index)
	}
	return nil
}

// RunStart runs the startup systems that ignore pause and, unless paused,
// the ones that run while unpaused. Pause changes requested by those systems
// are applied once their batch ends.
func (s *Scheduler) RunStart() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.inStartup = true
	always := slices.Clone(s.startupIgnorePause)
	s.mu.Unlock()

	disposes, err := s.runStartup(always)
	s.mu.Lock()
	s.disposeIgnorePause = append(s.disposeIgnorePause, disposes...)
	s.inStartup = false
	// nothing ran under the unpaused flag yet, so a pending change has no
	// edge to fire
	if pending := s.takePending(); pending != nil && *pending != s.paused {
		s.paused = *pending
		s.logger.Info().Bool("paused", s.paused).Msg("pause changed")
	}
	paused := s.paused
	s.mu.Unlock()
	if err != nil {
		return eris.Wrap(err, "startup failed")
	}
	if paused {
		return nil
	}
	return s.unpause()
}

// RunEnd runs every pending dispose callback, unpaused ones first
func (s *Scheduler) RunEnd() error {
	s.mu.Lock()
	unpaused := s.disposeUnpaused
	always := s.disposeIgnorePause
	s.disposeUnpaused = nil
	s.disposeIgnorePause = nil
	s.started = false
	s.mu.Unlock()

	if err := s.runDisposes(unpaused); err != nil {
		return eris.Wrap(err, "teardown failed")
	}
	if err := s.runDisposes(always); err != nil {
		return eris.Wrap(err, "teardown failed")
	}
	return nil
}

func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetPaused changes the pause flag. Becoming unpaused runs the unpaused
// startup systems, becoming paused runs their dispose callbacks. Each edge
// fires once; edges before RunStart only change the flag.
func (s *Scheduler) SetPaused(paused bool) error {
	s.mu.Lock()
	if s.inFrame || s.inStartup {
		s.pendingPause = &paused
		s.mu.Unlock()
		return nil
	}
	if s.paused == paused {
		s.mu.Unlock()
		return nil
	}
	s.paused = paused
	started := s.started
	s.mu.Unlock()

	s.logger.Info().Bool("paused", paused).Msg("pause changed")
	if !started {
		return nil
	}
	if paused {
		return s.pause()
	}
	return s.unpause()
}

// unpause runs the unpaused startup systems. A pause requested by one of them
// takes effect after the batch, so it disposes the whole batch.
func (s *Scheduler) unpause() error {
	s.mu.Lock()
	entries := slices.Clone(s.startupUnpaused)
	s.inStartup = true
	s.mu.Unlock()

	disposes, err := s.runStartup(entries)
	s.mu.Lock()
	s.disposeUnpaused = append(s.disposeUnpaused, disposes...)
	s.inStartup = false
	pending := s.takePending()
	s.mu.Unlock()
	if err != nil {
		return eris.Wrap(err, "unpause startup failed")
	}
	if pending != nil {
		return s.SetPaused(*pending)
	}
	return nil
}

// takePending clears and returns the deferred pause change. s.mu must be held.
func (s *Scheduler) takePending() *bool {
	pending := s.pendingPause
	s.pendingPause = nil
	return pending
}

func (s *Scheduler) pause() error {
	s.mu.Lock()
	disposes := s.disposeUnpaused
	s.disposeUnpaused = nil
	s.mu.Unlock()
	if err := s.runDisposes(disposes); err != nil {
		return eris.Wrap(err, "pause teardown failed")
	}
	return nil
}

// runStartup runs entries as one batch and collects their dispose callbacks,
// including those of entries that succeeded before a failure
func (s *Scheduler) runStartup(entries []startupEntry) ([]disposeEntry, error) {
	var (
		mu       sync.Mutex
		disposes []disposeEntry
	)
	tasks := make([]task, len(entries))
	for i, entry := range entries {
		tasks[i] = task{
			identifier: entry.identifier,
			mainThread: entry.config.MainThread,
			run: func() error {
				dispose, err := entry.run()
				if err != nil {
					return err
				}
				if dispose != nil {
					mu.Lock()
					disposes = append(disposes, disposeEntry{identifier: entry.identifier, run: dispose, config: entry.config})
					mu.Unlock()
				}
				return nil
			},
		}
	}
	err := s.runBatch(tasks)
	return disposes, err
}

func (s *Scheduler) runDisposes(entries []disposeEntry) error {
	tasks := make([]task, len(entries))
	for i, entry := range entries {
		tasks[i] = task{identifier: entry.identifier, mainThread: entry.config.MainThread, run: entry.run}
	}
	return s.runBatch(tasks)
}

// UnloadOrigin removes every system registered with origin and runs the
// pending dispose callbacks of its startup systems
func (s *Scheduler) UnloadOrigin(origin string) error {
	s.mu.Lock()
	for _, p := range s.pools {
		p.systems = slices.DeleteFunc(p.systems, func(e systemEntry) bool { return e.config.Origin == origin })
	}
	fromOrigin := func(e startupEntry) bool { return e.config.Origin == origin }
	s.startupIgnorePause = slices.DeleteFunc(s.startupIgnorePause, fromOrigin)
	s.startupUnpaused = slices.DeleteFunc(s.startupUnpaused, fromOrigin)

	var disposes []disposeEntry
	keep := func(list []disposeEntry) []disposeEntry {
		return slices.DeleteFunc(list, func(e disposeEntry) bool {
			if e.config.Origin == origin {
				disposes = append(disposes, e)
				return true
			}
			return false
		})
	}
	s.disposeUnpaused = keep(s.disposeUnpaused)
	s.disposeIgnorePause = keep(s.disposeIgnorePause)
	s.mu.Unlock()

	s.logger.Debug().Str("origin", origin).Int("disposes", len(disposes)).Msg("origin unloaded")
	if err := s.runDisposes(disposes); err != nil {
		return eris.Wrapf(err, "failed to unload origin %s", origin)
	}
	return nil
}
