package orchard

import (
	"github.com/rotisserie/eris"
)

type operation struct {
	typ   operationType
	id    EntityId
	comps []any
	index int
}

type operationType int

const (
	opAddComponents operationType = iota
	opRemoveComponent
	opDestroy
	opCancelled
)

// opQueue holds structural operations requested while a view was open.
// Creations are staged in a pending Storage instead.
type opQueue struct {
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[EntityId]struct{}
	pendingMods    map[EntityId][]int
}

func newOpQueue() opQueue {
	return opQueue{
		pendingDestroy: make(map[EntityId]struct{}),
		pendingMods:    make(map[EntityId][]int),
	}
}

func (q *opQueue) len() int {
	return len(q.componentOps) + len(q.destroyOps)
}

// take hands the queued operations over and resets q
func (q *opQueue) take() opQueue {
	taken := *q
	*q = newOpQueue()
	return taken
}

// EnqueueDestroy queues the removal of id once and drops its pending
// component operations
func (q *opQueue) EnqueueDestroy(id EntityId) {
	if _, exists := q.pendingDestroy[id]; exists {
		return
	}
	q.pendingDestroy[id] = struct{}{}
	for _, idx := range q.pendingMods[id] {
		q.componentOps[idx].typ = opCancelled
	}
	delete(q.pendingMods, id)
	q.destroyOps = append(q.destroyOps, operation{typ: opDestroy, id: id})
}

// EnqueueComponentOp queues a component change. Changes to an entity pending
// destruction are ignored.
func (q *opQueue) EnqueueComponentOp(op operation) {
	if _, isDestroyed := q.pendingDestroy[op.id]; isDestroyed {
		return
	}
	q.pendingMods[op.id] = append(q.pendingMods[op.id], len(q.componentOps))
	q.componentOps = append(q.componentOps, op)
}

// processOperationQueue applies creations first, then component changes in
// the order they were requested, then removals. Failed operations are
// returned and do not stop the rest.
func (w *World) processOperationQueue(pending *Storage, queue opQueue, evs *events) []error {
	var errs []error

	created, err := w.storage.Append(pending)
	if err != nil {
		errs = append(errs, eris.Wrap(err, "failed to process queued entity creation"))
	}
	for _, id := range created {
		if loc, ok := w.storage.Location(id); ok {
			evs.created(id, loc.archetype)
		}
	}

	for _, op := range queue.componentOps {
		switch op.typ {
		case opAddComponents:
			if err := w.addComponents(op.id, op.comps, evs); err != nil {
				errs = append(errs, eris.Wrapf(err, "failed to add queued components to entity %d", op.id))
			}
		case opRemoveComponent:
			if err := w.removeComponent(op.id, op.index, evs); err != nil {
				errs = append(errs, eris.Wrapf(err, "failed to remove queued component from entity %d", op.id))
			}
		}
	}

	for _, op := range queue.destroyOps {
		if _, err := w.removeEntity(op.id, evs); err != nil {
			errs = append(errs, eris.Wrapf(err, "failed to remove queued entity %d", op.id))
		}
	}
	return errs
}
