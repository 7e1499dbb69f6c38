package orchard

import (
	"iter"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
)

// World is the entry point for entity and component operations. It is safe
// for concurrent use.
//
// Query iteration and live guards are views. While any view is open, the
// structural operations (create, remove, add or remove components, clear,
// restore) fail with LockedStorageError and their Enqueue variants are
// deferred until the last view closes.
type World struct {
	// mu protects the archetype collection
	mu      sync.RWMutex
	storage *Storage

	deferMu  sync.Mutex
	views    int
	flushing bool
	pending  *Storage
	opQueue  opQueue

	nextID atomic.Uint64

	cellsMu sync.Mutex
	cells   *intmap.Map[EntityId, weak.Pointer[locationCell]]

	extensions ExtensionProvider

	onCreated Signal[entityEvent]
	onDeleted Signal[entityEvent]
	onMoved   Signal[entityEvent]
}

type WorldOption func(*World)

// WithExtensions resolves extension components on creation and on add
func WithExtensions(p ExtensionProvider) WorldOption {
	return func(w *World) { w.extensions = p }
}

type eventKind int

const (
	eventCreated eventKind = iota
	eventDeleted
	eventMoved
)

type entityEvent struct {
	kind     eventKind
	id       EntityId
	from, to *Archetype
}

// events collects the notifications of one mutation so they can be delivered
// after the world locks are released
type events []entityEvent

func (e *events) created(id EntityId, to *Archetype) {
	*e = append(*e, entityEvent{kind: eventCreated, id: id, to: to})
}

func (e *events) deleted(id EntityId, from *Archetype) {
	*e = append(*e, entityEvent{kind: eventDeleted, id: id, from: from})
}

func (e *events) moved(id EntityId, from, to *Archetype) {
	*e = append(*e, entityEvent{kind: eventMoved, id: id, from: from, to: to})
}

func newWorld(opts ...WorldOption) *World {
	w := &World{
		storage: newStorage(),
		pending: newStorage(),
		opQueue: newOpQueue(),
		cells:   intmap.New[EntityId, weak.Pointer[locationCell]](64),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.storage.OnEntityRelocated.Subscribe(w.patchCell)
	w.storage.OnEntityRemoved.Subscribe(w.dropCell)
	return w
}

func (w *World) mintID() EntityId {
	return EntityId(w.nextID.Add(1))
}

// reserveID moves the id counter past id
func (w *World) reserveID(id EntityId) {
	for {
		cur := w.nextID.Load()
		if cur >= uint64(id) || w.nextID.CompareAndSwap(cur, uint64(id)) {
			return
		}
	}
}

// CreateEntity creates an entity holding components and their extensions
func (w *World) CreateEntity(name string, enabled bool, components ...any) (EntityId, error) {
	id := w.mintID()
	if err := w.CreateEntityWithID(id, name, enabled, components...); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateEntityWithID creates an entity under a caller chosen id. Later ids
// minted by the world are greater than id.
func (w *World) CreateEntityWithID(id EntityId, name string, enabled bool, components ...any) error {
	if id == 0 {
		return ReservedEntityIDError{}
	}
	w.reserveID(id)
	components = w.withExtensions(components)
	return w.mutate(func(evs *events) error {
		return w.createEntity(id, name, enabled, components, evs)
	})
}

// RemoveEntity deletes id and returns the components it held
func (w *World) RemoveEntity(id EntityId) ([]any, error) {
	var rec EntityRecord
	err := w.mutate(func(evs *events) error {
		var err error
		rec, err = w.removeEntity(id, evs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec.Components, nil
}

// AddComponents attaches components to id, moving it to a new archetype
func (w *World) AddComponents(id EntityId, components ...any) error {
	return w.mutate(func(evs *events) error {
		return w.addComponents(id, components, evs)
	})
}

// RemoveComponent drops the component at index, counted across the
// entity's components in signature order
func (w *World) RemoveComponent(id EntityId, index int) error {
	return w.mutate(func(evs *events) error {
		return w.removeComponent(id, index, evs)
	})
}

// EnqueueCreateEntity creates an entity now, or once the last open view
// closes. The id is valid immediately.
func (w *World) EnqueueCreateEntity(name string, enabled bool, components ...any) (EntityId, error) {
	id := w.mintID()
	components = w.withExtensions(components)
	err := w.deferOr(
		func(evs *events) error {
			return w.createEntity(id, name, enabled, components, evs)
		},
		func() error {
			_, err := w.pending.CreateEntity(id, name, enabled, components)
			return err
		},
	)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (w *World) EnqueueRemoveEntity(id EntityId) error {
	return w.deferOr(
		func(evs *events) error {
			_, err := w.removeEntity(id, evs)
			return err
		},
		func() error {
			w.opQueue.EnqueueDestroy(id)
			return nil
		},
	)
}

func (w *World) EnqueueAddComponents(id EntityId, components ...any) error {
	return w.deferOr(
		func(evs *events) error {
			return w.addComponents(id, components, evs)
		},
		func() error {
			w.opQueue.EnqueueComponentOp(operation{typ: opAddComponents, id: id, comps: components})
			return nil
		},
	)
}

func (w *World) EnqueueRemoveComponent(id EntityId, index int) error {
	return w.deferOr(
		func(evs *events) error {
			return w.removeComponent(id, index, evs)
		},
		func() error {
			w.opQueue.EnqueueComponentOp(operation{typ: opRemoveComponent, id: id, index: index})
			return nil
		},
	)
}

// Clear removes every entity
func (w *World) Clear() error {
	return w.mutate(w.clear)
}

func (w *World) clear(evs *events) error {
	for _, arch := range w.storage.archetypes {
		for _, id := range arch.ids {
			evs.deleted(id, arch)
		}
	}
	if _, err := w.storage.Clear(); err != nil {
		return eris.Wrap(err, "failed to clear storage")
	}
	return nil
}

// SetEnabled toggles whether queries visit id by default
func (w *World) SetEnabled(id EntityId, enabled bool) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	loc, ok := w.storage.Location(id)
	if !ok {
		return EntityNotFoundError{ID: id}
	}
	loc.archetype.setEnabled(loc.row, enabled)
	return nil
}

// Components returns a copy of the components of id in signature order
func (w *World) Components(id EntityId) ([]any, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	loc, ok := w.storage.Location(id)
	if !ok {
		return nil, EntityNotFoundError{ID: id}
	}
	lock := loc.archetype.locks[loc.row]
	lock.lock(false)
	defer lock.unlock(false)
	return loc.archetype.components(loc.row), nil
}

func (w *World) HasEntity(id EntityId) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.storage.HasEntity(id)
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.storage.Len()
}

// Entities yields the ids live when iteration starts, in archetype order
func (w *World) Entities() iter.Seq[EntityId] {
	w.mu.RLock()
	ids := make([]EntityId, 0, w.storage.Len())
	for _, arch := range w.storage.archetypes {
		ids = append(ids, arch.ids...)
	}
	w.mu.RUnlock()
	return func(yield func(EntityId) bool) {
		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Archetypes returns the archetype collection in signature order
func (w *World) Archetypes() []*Archetype {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.storage.Archetypes()
}

// Locked reports whether a view is open
func (w *World) Locked() bool {
	w.deferMu.Lock()
	defer w.deferMu.Unlock()
	return w.views > 0
}

// OnEntityCreated calls fn after an entity was created
func (w *World) OnEntityCreated(fn func(EntityId)) (dispose func()) {
	return w.onCreated.Subscribe(func(ev entityEvent) { fn(ev.id) })
}

// OnEntityDeleted calls fn after an entity was removed
func (w *World) OnEntityDeleted(fn func(EntityId)) (dispose func()) {
	return w.onDeleted.Subscribe(func(ev entityEvent) { fn(ev.id) })
}

// mutate runs fn with the archetype collection locked, failing while a view
// is open
func (w *World) mutate(fn func(*events) error) error {
	return w.deferOr(fn, func() error { return LockedStorageError{} })
}

// deferOr runs direct when no view is open, otherwise enqueue under the
// deferral lock
func (w *World) deferOr(direct func(*events) error, enqueue func() error) error {
	w.deferMu.Lock()
	if w.views > 0 {
		defer w.deferMu.Unlock()
		return enqueue()
	}
	var evs events
	w.mu.Lock()
	err := direct(&evs)
	w.mu.Unlock()
	w.deferMu.Unlock()
	w.dispatch(evs)
	return err
}

func (w *World) dispatch(evs events) {
	for _, ev := range evs {
		switch ev.kind {
		case eventCreated:
			w.onCreated.Notify(ev)
		case eventDeleted:
			w.onDeleted.Notify(ev)
		case eventMoved:
			w.onMoved.Notify(ev)
		}
	}
}

func (w *World) beginView() {
	w.deferMu.Lock()
	w.views++
	w.deferMu.Unlock()
}

func (w *World) endView() {
	w.deferMu.Lock()
	w.views--
	run := w.views == 0 && !w.flushing && w.hasPending()
	if run {
		w.flushing = true
	}
	w.deferMu.Unlock()
	if run {
		w.flush()
	}
}

func (w *World) hasPending() bool {
	return !w.pending.isEmpty() || w.opQueue.len() > 0
}

// flush applies deferred work until none is left or a view opens again
func (w *World) flush() {
	log := Config.Logger()
	for {
		w.deferMu.Lock()
		if w.views > 0 || !w.hasPending() {
			w.flushing = false
			w.deferMu.Unlock()
			return
		}
		pending := w.pending
		w.pending = newStorage()
		queue := w.opQueue.take()

		var evs events
		w.mu.Lock()
		errs := w.processOperationQueue(pending, queue, &evs)
		w.mu.Unlock()
		w.deferMu.Unlock()

		for _, err := range errs {
			log.Error().Str("error", eris.ToString(err, true)).Msg("deferred operation failed")
		}
		log.Debug().Int("events", len(evs)).Msg("deferred operations flushed")
		w.dispatch(evs)
	}
}
