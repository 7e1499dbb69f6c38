package orchard

import (
	"slices"

	"github.com/TheBitDrifter/table"
	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
)

// Storage owns the archetype collection and the location of every entity.
// It is not safe for concurrent use; World serializes access to it.
type Storage struct {
	archetypes []*Archetype
	byKey      map[string]*Archetype
	nextID     archetypeID
	locations  *intmap.Map[EntityId, EntityLocation]
	entries    table.EntryIndex

	// OnArchetypeCreated fires after a new archetype joined the collection.
	OnArchetypeCreated Signal[*Archetype]
	// OnArchetypesReallocated fires with the new ordering whenever an
	// insertion shifted or reallocated the collection.
	OnArchetypesReallocated Signal[[]*Archetype]
	// OnEntityRelocated fires for every entity whose row changed.
	OnEntityRelocated Signal[EntityRelocation]
	// OnEntityRemoved fires after an entity left the storage.
	OnEntityRemoved Signal[EntityId]
}

// EntityRelocation describes a row move. From is the zero location when the
// entity arrived from another storage.
type EntityRelocation struct {
	ID   EntityId
	From EntityLocation
	To   EntityLocation
}

func newStorage() *Storage {
	return &Storage{
		byKey:     make(map[string]*Archetype),
		nextID:    1,
		locations: intmap.New[EntityId, EntityLocation](64),
		entries:   table.Factory.NewEntryIndex(),
	}
}

// CreateEntity places a new row for id in the archetype matching components
func (sto *Storage) CreateEntity(id EntityId, name string, enabled bool, components []any) (EntityLocation, error) {
	if sto.locations.Has(id) {
		return EntityLocation{}, DuplicateEntityError{ID: id}
	}
	sig, err := signatureOf(components)
	if err != nil {
		return EntityLocation{}, eris.Wrapf(err, "failed to compute signature of entity %d", id)
	}
	arch, err := sto.archetypeFor(sig)
	if err != nil {
		return EntityLocation{}, err
	}
	row, err := arch.addEntity(id, name, enabled, components)
	if err != nil {
		return EntityLocation{}, err
	}
	loc := EntityLocation{archetype: arch, row: row}
	sto.locations.Put(id, loc)
	return loc, nil
}

// RemoveEntity excises the row of id and returns what it held
func (sto *Storage) RemoveEntity(id EntityId) (EntityRecord, error) {
	loc, ok := sto.locations.Get(id)
	if !ok {
		return EntityRecord{}, EntityNotFoundError{ID: id}
	}
	rec, err := sto.excise(loc)
	if err != nil {
		return rec, err
	}
	sto.locations.Del(id)
	sto.OnEntityRemoved.Notify(id)
	return rec, nil
}

// MoveEntity replaces the component set of id. The entity keeps its id, name
// and enabled flag and moves to the archetype matching the new set. When the
// new set is rejected, storage is left unchanged.
func (sto *Storage) MoveEntity(id EntityId, components []any) (from, to EntityLocation, err error) {
	from, ok := sto.locations.Get(id)
	if !ok {
		return from, to, EntityNotFoundError{ID: id}
	}
	sig, err := signatureOf(components)
	if err != nil {
		return from, to, eris.Wrapf(err, "failed to compute signature of entity %d", id)
	}
	dest, err := sto.archetypeFor(sig)
	if err != nil {
		return from, to, err
	}
	if _, err := dest.group(components); err != nil {
		return from, to, err
	}

	name := from.archetype.names[from.row]
	enabled := from.archetype.isEnabled(from.row)
	if _, err := sto.excise(from); err != nil {
		return from, to, err
	}
	row, err := dest.addEntity(id, name, enabled, components)
	if err != nil {
		sto.locations.Del(id)
		sto.OnEntityRemoved.Notify(id)
		return from, to, err
	}
	to = EntityLocation{archetype: dest, row: row}
	sto.locations.Put(id, to)
	sto.OnEntityRelocated.Notify(EntityRelocation{ID: id, From: from, To: to})
	return from, to, nil
}

// excise swap-removes the row at loc and repairs the location of the row
// moved into its place
func (sto *Storage) excise(loc EntityLocation) (EntityRecord, error) {
	rec, movedID, moved, err := loc.archetype.removeEntity(loc.row)
	if err != nil {
		return rec, err
	}
	if moved {
		oldRow := loc.archetype.Len()
		sto.locations.Put(movedID, loc)
		sto.OnEntityRelocated.Notify(EntityRelocation{
			ID:   movedID,
			From: EntityLocation{archetype: loc.archetype, row: oldRow},
			To:   loc,
		})
	}
	return rec, nil
}

// archetypeFor returns the archetype for sig, creating and inserting it in
// signature order when missing
func (sto *Storage) archetypeFor(sig Signature) (*Archetype, error) {
	if arch, ok := sto.byKey[sig.key]; ok {
		return arch, nil
	}
	arch, err := newArchetype(sto.nextID, sig, sto.entries)
	if err != nil {
		return nil, err
	}
	sto.nextID++
	sto.insert(arch)
	return arch, nil
}

func (sto *Storage) insert(arch *Archetype) {
	oldCap := cap(sto.archetypes)
	pos, _ := slices.BinarySearchFunc(sto.archetypes, arch, func(a, b *Archetype) int {
		switch {
		case a.signature.less(b.signature):
			return -1
		case b.signature.less(a.signature):
			return 1
		}
		return 0
	})
	sto.archetypes = slices.Insert(sto.archetypes, pos, arch)
	sto.byKey[arch.signature.key] = arch

	log := Config.Logger()
	log.Debug().
		Uint32("archetype", arch.ID()).
		Str("signature", arch.signature.key).
		Int("archetypes", len(sto.archetypes)).
		Msg("archetype created")

	sto.OnArchetypeCreated.Notify(arch)
	if cap(sto.archetypes) != oldCap || pos != len(sto.archetypes)-1 {
		sto.OnArchetypesReallocated.Notify(slices.Clone(sto.archetypes))
	}
}

// Append moves every entity of other into sto, merging rows into archetypes
// of the same signature. other is left empty. The ids of the moved entities are
// returned in the order they were placed.
func (sto *Storage) Append(other *Storage) ([]EntityId, error) {
	for id := range other.locations.Keys() {
		if sto.locations.Has(id) {
			return nil, DuplicateEntityError{ID: id}
		}
	}

	var moved []EntityId
	for _, src := range other.archetypes {
		if src.Len() == 0 {
			continue
		}
		// missing archetypes are recreated rather than adopted, tables are
		// bound to the entry index of their storage
		dest, err := sto.archetypeFor(src.signature)
		if err != nil {
			return moved, err
		}
		start, err := dest.append(src)
		if err != nil {
			return moved, err
		}
		for row := start; row < dest.Len(); row++ {
			id := dest.ids[row]
			to := EntityLocation{archetype: dest, row: row}
			sto.locations.Put(id, to)
			moved = append(moved, id)
			sto.OnEntityRelocated.Notify(EntityRelocation{ID: id, To: to})
		}
	}
	other.locations.Clear()

	if len(moved) > 0 {
		log := Config.Logger()
		log.Debug().Int("entities", len(moved)).Msg("storage appended")
	}
	return moved, nil
}

// Clear removes every entity. Archetypes are kept so live queries stay valid.
func (sto *Storage) Clear() ([]EntityRecord, error) {
	var removed []EntityRecord
	for _, arch := range sto.archetypes {
		for row := range arch.Len() {
			removed = append(removed, EntityRecord{
				ID:         arch.ids[row],
				Name:       arch.names[row],
				Enabled:    arch.isEnabled(row),
				Components: arch.components(row),
			})
		}
	}
	for _, arch := range sto.archetypes {
		if err := arch.clear(); err != nil {
			return nil, err
		}
	}
	sto.locations.Clear()
	if err := sto.entries.Reset(); err != nil {
		return nil, eris.Wrap(err, "failed to reset entry index")
	}
	for _, rec := range removed {
		sto.OnEntityRemoved.Notify(rec.ID)
	}
	return removed, nil
}

func (sto *Storage) Location(id EntityId) (EntityLocation, bool) {
	return sto.locations.Get(id)
}

func (sto *Storage) HasEntity(id EntityId) bool {
	return sto.locations.Has(id)
}

func (sto *Storage) Len() int {
	return sto.locations.Len()
}

// Archetypes returns the collection in signature order
func (sto *Storage) Archetypes() []*Archetype {
	return slices.Clone(sto.archetypes)
}

// Components returns the components of id in signature order
func (sto *Storage) Components(id EntityId) ([]any, error) {
	loc, ok := sto.locations.Get(id)
	if !ok {
		return nil, EntityNotFoundError{ID: id}
	}
	return loc.archetype.components(loc.row), nil
}

func (sto *Storage) isEmpty() bool {
	return sto.locations.Len() == 0
}
