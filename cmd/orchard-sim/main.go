// Headless simulation driving a world through the scheduler.
//
// Profiling:
// go build ./cmd/orchard-sim
// ./orchard-sim -entities 100000 -frames 600 -profile cpu
// go tool pprof -http=":8000" ./orchard-sim cpu.pprof

package main

import (
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/TheBitDrifter/orchard"
	"github.com/TheBitDrifter/orchard/scheduler"
	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

// Lifetime counts down the frames an entity has left
type Lifetime struct {
	Frames int
}

var (
	position = orchard.FactoryNewComponent[Position]()
	velocity = orchard.FactoryNewComponent[Velocity]()
	lifetime = orchard.FactoryNewComponent[Lifetime]()
)

func main() {
	entities := flag.Int("entities", 10000, "number of entities spawned at startup")
	frames := flag.Int("frames", 300, "number of frames to run")
	spawn := flag.Int("spawn", 50, "entities spawned per frame")
	pauseEvery := flag.Int("pause-every", 0, "toggle pause every n frames, 0 disables")
	profileMode := flag.String("profile", "", "profile mode: cpu or mem")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
	orchard.Config.SetLogger(log)

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "":
	default:
		log.Fatal().Str("profile", *profileMode).Msg("unknown profile mode")
	}

	sim := newSimulation(log, *entities, *spawn)
	if err := sim.run(*frames, *pauseEvery); err != nil {
		log.Error().Str("error", eris.ToString(err, true)).Msg("simulation failed")
		os.Exit(1)
	}
}

type simulation struct {
	log       zerolog.Logger
	world     *orchard.World
	scheduler *scheduler.Scheduler
	rng       *rand.Rand

	initial  int
	perFrame int

	movers *orchard.Query
	aging  *orchard.Query

	spawned int
	expired int
}

func newSimulation(log zerolog.Logger, initial, perFrame int) *simulation {
	world := orchard.Factory.NewWorld()
	query := orchard.Factory.NewQuery()
	sim := &simulation{
		log:       log,
		world:     world,
		scheduler: scheduler.New(scheduler.WithLogger(log)),
		rng:       rand.New(rand.NewSource(1)),
		initial:   initial,
		perFrame:  perFrame,
		movers:    world.Query(query.And(position, orchard.Read(velocity))),
		aging:     world.Query(query.And(lifetime)),
	}
	world.OnEntityDeleted(func(orchard.EntityId) { sim.expired++ })

	sim.scheduler.AddStartupSystem("populate", sim.populate, scheduler.ExecuteInMainThread())
	sim.scheduler.AddSystem("spawn", sim.spawnSystem, scheduler.InPool(10), scheduler.ExecuteInMainThread())
	sim.scheduler.AddSystem("movement", sim.movementSystem, scheduler.InPool(20))
	sim.scheduler.AddSystem("aging", sim.agingSystem, scheduler.InPool(20))
	sim.scheduler.AddSystem("report", sim.reportSystem, scheduler.InPool(90), scheduler.IgnorePause())
	return sim
}

func (sim *simulation) run(frames, pauseEvery int) error {
	if err := sim.scheduler.RunStart(); err != nil {
		return err
	}
	start := time.Now()
	for frame := 1; frame <= frames; frame++ {
		if pauseEvery > 0 && frame%pauseEvery == 0 {
			if err := sim.scheduler.SetPaused(!sim.scheduler.IsPaused()); err != nil {
				return err
			}
		}
		if err := sim.scheduler.RunFrame(); err != nil {
			return eris.Wrapf(err, "frame %d", frame)
		}
	}
	elapsed := time.Since(start)
	if err := sim.scheduler.RunEnd(); err != nil {
		return err
	}
	sim.log.Info().
		Int("frames", frames).
		Dur("elapsed", elapsed).
		Int("spawned", sim.spawned).
		Int("expired", sim.expired).
		Int("alive", sim.world.Len()).
		Int("archetypes", len(sim.world.Archetypes())).
		Msg("simulation finished")
	return nil
}

// populate spawns the initial entities and clears them when the scheduler
// pauses or ends
func (sim *simulation) populate() (scheduler.Dispose, error) {
	var ids []orchard.EntityId
	for range sim.initial {
		id, err := sim.spawnOne()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sim.log.Debug().Int("entities", len(ids)).Msg("populated")
	return func() error {
		for _, id := range ids {
			if !sim.world.HasEntity(id) {
				continue
			}
			if _, err := sim.world.RemoveEntity(id); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func (sim *simulation) spawnOne() (orchard.EntityId, error) {
	components := []any{
		Position{X: sim.rng.Float64() * 100, Y: sim.rng.Float64() * 100},
		Velocity{X: sim.rng.Float64() - 0.5, Y: sim.rng.Float64() - 0.5},
	}
	if sim.rng.Intn(2) == 0 {
		components = append(components, Lifetime{Frames: 10 + sim.rng.Intn(50)})
	}
	id, err := sim.world.CreateEntity("", true, components...)
	if err == nil {
		sim.spawned++
	}
	return id, err
}

func (sim *simulation) spawnSystem() error {
	for range sim.perFrame {
		if _, err := sim.spawnOne(); err != nil {
			return err
		}
	}
	return nil
}

func (sim *simulation) movementSystem() error {
	return sim.movers.ParallelForEach(func(row *orchard.Row) error {
		pos := position.GetFromRow(row)
		vel := velocity.GetFromRow(row)
		pos.X += vel.X
		pos.Y += vel.Y
		return nil
	})
}

func (sim *simulation) agingSystem() error {
	return sim.aging.ForEach(func(row *orchard.Row) error {
		life := lifetime.GetFromRow(row)
		life.Frames--
		if life.Frames > 0 {
			return nil
		}
		return sim.world.EnqueueRemoveEntity(row.ID())
	})
}

func (sim *simulation) reportSystem() error {
	sim.log.Debug().
		Int("alive", sim.world.Len()).
		Bool("paused", sim.scheduler.IsPaused()).
		Msg("frame")
	return nil
}
