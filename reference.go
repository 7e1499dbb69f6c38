package orchard

import (
	"runtime"
	"sync"
	"weak"
)

// locationCell is shared by every reference to one entity. The world patches
// it when the entity's row moves and marks it deleted on removal.
type locationCell struct {
	mu      sync.Mutex
	id      EntityId
	loc     EntityLocation
	deleted bool
}

func (c *locationCell) get() (EntityLocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loc, !c.deleted
}

func (c *locationCell) set(loc EntityLocation) {
	c.mu.Lock()
	c.loc = loc
	c.mu.Unlock()
}

func (c *locationCell) markDeleted() {
	c.mu.Lock()
	c.deleted = true
	c.loc = EntityLocation{}
	c.mu.Unlock()
}

// EntityReference is a copyable handle that keeps resolving to the same
// entity while rows are relocated.
type EntityReference struct {
	world *World
	cell  *locationCell
}

func (r EntityReference) ID() EntityId {
	return r.cell.id
}

// Alive reports whether the entity still exists
func (r EntityReference) Alive() bool {
	_, ok := r.cell.get()
	return ok
}

func (r EntityReference) Read() (*EntityReadGuard, error) {
	view, g, err := r.world.acquire(r.cell, false)
	if err != nil {
		return nil, err
	}
	return &EntityReadGuard{rowView: view, guard: g}, nil
}

func (r EntityReference) Write() (*EntityWriteGuard, error) {
	view, g, err := r.world.acquire(r.cell, true)
	if err != nil {
		return nil, err
	}
	return &EntityWriteGuard{rowView: view, guard: g}, nil
}

// Component returns a reference to the component of type c at slot
func (r EntityReference) Component(c Component, slot int) ComponentReference {
	return ComponentReference{entity: r, typ: c.Type(), slot: slot}
}

// ComponentAt returns a reference to the component at the flattened index,
// resolved against the entity's current signature
func (r EntityReference) ComponentAt(index int) (ComponentReference, error) {
	view, g, err := r.world.acquire(r.cell, false)
	if err != nil {
		return ComponentReference{}, err
	}
	defer g.Release()
	id, slot, ok := view.arch.signature.flatten(index)
	if !ok {
		return ComponentReference{}, ComponentIndexError{ID: r.ID(), Index: index, Len: view.arch.signature.Width()}
	}
	return ComponentReference{entity: r, typ: infoFor(id).ComponentType, slot: slot}, nil
}

// ComponentReference points at one component slot of an entity. It follows
// the entity across relocations and fails once the entity or the component is
// gone.
type ComponentReference struct {
	entity EntityReference
	typ    ComponentType
	slot   int
}

func (r ComponentReference) Entity() EntityReference { return r.entity }
func (r ComponentReference) Type() ComponentType     { return r.typ }
func (r ComponentReference) Slot() int               { return r.slot }

func (r ComponentReference) Read() (*ComponentReadGuard, error) {
	view, g, err := r.entity.world.acquire(r.entity.cell, false)
	if err != nil {
		return nil, err
	}
	if !view.has(r.typ.id, r.slot) {
		g.Release()
		return nil, ComponentNotFoundError{ID: r.entity.ID(), Type: r.typ}
	}
	return &ComponentReadGuard{rowView: view, guard: g, typ: r.typ, slot: r.slot}, nil
}

func (r ComponentReference) Write() (*ComponentWriteGuard, error) {
	view, g, err := r.entity.world.acquire(r.entity.cell, true)
	if err != nil {
		return nil, err
	}
	if !view.has(r.typ.id, r.slot) {
		g.Release()
		return nil, ComponentNotFoundError{ID: r.entity.ID(), Type: r.typ}
	}
	return &ComponentWriteGuard{ComponentReadGuard{rowView: view, guard: g, typ: r.typ, slot: r.slot}}, nil
}

// EntityReference returns a stable handle to id
func (w *World) EntityReference(id EntityId) (EntityReference, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	loc, ok := w.storage.Location(id)
	if !ok {
		return EntityReference{}, false
	}

	w.cellsMu.Lock()
	defer w.cellsMu.Unlock()
	if wp, found := w.cells.Get(id); found {
		if cell := wp.Value(); cell != nil {
			return EntityReference{world: w, cell: cell}, true
		}
	}
	cell := &locationCell{id: id, loc: loc}
	w.cells.Put(id, weak.Make(cell))
	runtime.AddCleanup(cell, w.pruneCell, id)
	return EntityReference{world: w, cell: cell}, true
}

func (w *World) patchCell(r EntityRelocation) {
	w.cellsMu.Lock()
	defer w.cellsMu.Unlock()
	wp, ok := w.cells.Get(r.ID)
	if !ok {
		return
	}
	if cell := wp.Value(); cell != nil {
		cell.set(r.To)
		return
	}
	w.cells.Del(r.ID)
}

func (w *World) dropCell(id EntityId) {
	w.cellsMu.Lock()
	defer w.cellsMu.Unlock()
	wp, ok := w.cells.Get(id)
	if !ok {
		return
	}
	if cell := wp.Value(); cell != nil {
		cell.markDeleted()
	}
	w.cells.Del(id)
}

// pruneCell forgets id once its cell was collected, unless a newer cell
// replaced it in the meantime
func (w *World) pruneCell(id EntityId) {
	w.cellsMu.Lock()
	defer w.cellsMu.Unlock()
	if wp, ok := w.cells.Get(id); ok && wp.Value() == nil {
		w.cells.Del(id)
	}
}

// acquire opens a view, resolves cell and takes its row lock
func (w *World) acquire(cell *locationCell, write bool) (rowView, *guard, error) {
	w.beginView()
	loc, ok := cell.get()
	if !ok || !loc.valid() {
		w.endView()
		return rowView{}, nil, DeletedReferenceError{ID: cell.id}
	}
	lock := loc.archetype.locks[loc.row]
	lock.lock(write)
	return rowView{world: w, arch: loc.archetype, index: loc.row},
		&guard{world: w, lock: lock, write: write},
		nil
}
