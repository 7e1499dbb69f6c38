package orchard

import (
	"fmt"
	"slices"

	"github.com/rotisserie/eris"
)

// EntityId identifies an entity for the lifetime of its World. Zero is never
// a valid id.
type EntityId uint64

func (id EntityId) String() string {
	return fmt.Sprintf("entity#%d", uint64(id))
}

// EntityLocation is the archetype and row currently holding an entity
type EntityLocation struct {
	archetype *Archetype
	row       int
}

func (l EntityLocation) Archetype() *Archetype { return l.archetype }
func (l EntityLocation) Row() int              { return l.row }

func (l EntityLocation) valid() bool {
	return l.archetype != nil && l.row >= 0 && l.row < l.archetype.Len()
}

// addComponents moves id to the archetype holding its current components plus
// the new ones and their extensions
func (w *World) addComponents(id EntityId, components []any, evs *events) error {
	current, err := w.storage.Components(id)
	if err != nil {
		return err
	}
	next := append(current, w.withExtensions(components)...)
	from, to, err := w.storage.MoveEntity(id, next)
	if err != nil {
		return eris.Wrapf(err, "failed to add components to entity %d", id)
	}
	evs.moved(id, from.archetype, to.archetype)
	return nil
}

// removeComponent drops the component at the flattened index of id
func (w *World) removeComponent(id EntityId, index int, evs *events) error {
	current, err := w.storage.Components(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(current) {
		return ComponentIndexError{ID: id, Index: index, Len: len(current)}
	}
	next := slices.Delete(current, index, index+1)
	from, to, err := w.storage.MoveEntity(id, next)
	if err != nil {
		return eris.Wrapf(err, "failed to remove component %d from entity %d", index, id)
	}
	evs.moved(id, from.archetype, to.archetype)
	return nil
}

func (w *World) removeEntity(id EntityId, evs *events) (EntityRecord, error) {
	loc, ok := w.storage.Location(id)
	if !ok {
		return EntityRecord{}, EntityNotFoundError{ID: id}
	}
	rec, err := w.storage.RemoveEntity(id)
	if err != nil {
		return rec, err
	}
	evs.deleted(id, loc.archetype)
	return rec, nil
}

func (w *World) createEntity(id EntityId, name string, enabled bool, components []any, evs *events) error {
	loc, err := w.storage.CreateEntity(id, name, enabled, components)
	if err != nil {
		return err
	}
	evs.created(id, loc.archetype)
	return nil
}

// withExtensions appends the extension components resolved for components
func (w *World) withExtensions(components []any) []any {
	if w.extensions == nil {
		return components
	}
	out := slices.Clone(components)
	for _, c := range components {
		out = append(out, w.extensions.Extensions(c)...)
	}
	return out
}
