package scheduler

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

type pool struct {
	enabled bool
	systems []systemEntry
}

// task is one unit of a batch: a frame system, a startup system or a dispose
// callback
type task struct {
	identifier string
	mainThread bool
	run        func() error
}

// runBatch runs the main-thread tasks on the caller while the rest fan out.
// The first failure stops tasks that have not started yet and is returned.
func (s *Scheduler) runBatch(tasks []task) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	var main []task
	for _, t := range tasks {
		if t.mainThread {
			main = append(main, t)
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return s.call(t)
		})
	}

	var mainErr error
	for _, t := range main {
		if gctx.Err() != nil {
			break
		}
		if err := s.call(t); err != nil {
			mainErr = err
			cancel()
			break
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return mainErr
}

// call runs t and turns a panic into an error
func (s *Scheduler) call(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("system %s panicked: %v", t.identifier, r)
		}
		if err != nil {
			s.logger.Error().
				Str("system", t.identifier).
				Str("error", eris.ToString(err, false)).
				Msg("system failed")
		}
	}()
	if err := t.run(); err != nil {
		return eris.Wrapf(err, "system %s failed", t.identifier)
	}
	return nil
}
