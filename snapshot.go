package orchard

import (
	"io"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Snapshot is the serialized form of a world's entities. Entity ids inside
// it are local to the snapshot, starting at one in archetype order.
type Snapshot struct {
	ID       uuid.UUID          `yaml:"id"`
	Entities []SerializedEntity `yaml:"entities"`
}

type SerializedEntity struct {
	LocalID    uint64                `yaml:"local_id"`
	Name       string                `yaml:"name"`
	Enabled    bool                  `yaml:"enabled"`
	Components []SerializedComponent `yaml:"components"`
}

// SerializedComponent holds a component value under its registered type name
type SerializedComponent struct {
	Type  string    `yaml:"type"`
	Value yaml.Node `yaml:"value"`
}

// Snapshot serializes every entity. Components implementing EntityRemapper
// have their entity ids rewritten to local ids; ids of entities outside the
// world become zero.
func (w *World) Snapshot() (Snapshot, error) {
	w.beginView()
	defer w.endView()

	snap := Snapshot{ID: uuid.New()}
	archetypes := w.storage.Archetypes()

	locals := make(map[EntityId]uint64, w.storage.Len())
	for _, arch := range archetypes {
		for _, id := range arch.ids {
			locals[id] = uint64(len(locals) + 1)
		}
	}
	remap := func(id EntityId) EntityId {
		return EntityId(locals[id])
	}

	for _, arch := range archetypes {
		for row, id := range arch.ids {
			entity, err := w.serializeRow(arch, row, remap)
			if err != nil {
				return Snapshot{}, eris.Wrapf(err, "failed to snapshot entity %d", id)
			}
			entity.LocalID = locals[id]
			snap.Entities = append(snap.Entities, entity)
		}
	}
	return snap, nil
}

func (w *World) serializeRow(arch *Archetype, row int, remap func(EntityId) EntityId) (SerializedEntity, error) {
	lock := arch.locks[row]
	lock.lock(false)
	defer lock.unlock(false)

	entity := SerializedEntity{
		Name:    arch.names[row],
		Enabled: arch.isEnabled(row),
	}
	for i, typeID := range arch.signature.types {
		info := infoFor(typeID)
		for slot := range arch.signature.slots[i] {
			stored, _ := arch.get(row, typeID, slot)
			value, err := info.encode(stored, remap)
			if err != nil {
				return entity, err
			}
			sc := SerializedComponent{Type: info.name}
			if err := sc.Value.Encode(value); err != nil {
				return entity, eris.Wrapf(err, "failed to encode component %s", info.name)
			}
			entity.Components = append(entity.Components, sc)
		}
	}
	return entity, nil
}

// Restore recreates the entities of snap under freshly minted ids and
// returns them in snapshot order. Component types that are not registered
// are skipped.
func (w *World) Restore(snap Snapshot, clearBefore bool) ([]EntityId, error) {
	log := Config.Logger()

	ids := make([]EntityId, len(snap.Entities))
	reals := make(map[uint64]EntityId, len(snap.Entities))
	for i, entity := range snap.Entities {
		ids[i] = w.mintID()
		reals[entity.LocalID] = ids[i]
	}
	remap := func(local EntityId) EntityId {
		return reals[uint64(local)]
	}

	decoded := make([][]any, len(snap.Entities))
	for i, entity := range snap.Entities {
		for _, sc := range entity.Components {
			ct, ok := ComponentTypeByName(sc.Type)
			if !ok {
				log.Warn().
					Str("type", sc.Type).
					Uint64("local_id", entity.LocalID).
					Msg("skipping unregistered component type")
				continue
			}
			value, err := infoFor(ct.id).decode(&sc.Value, remap)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to restore entity %d", entity.LocalID)
			}
			decoded[i] = append(decoded[i], value)
		}
	}

	// reject the snapshot before anything is cleared
	for i, entity := range snap.Entities {
		if _, err := signatureOf(decoded[i]); err != nil {
			return nil, eris.Wrapf(err, "failed to restore entity %d", entity.LocalID)
		}
	}

	err := w.mutate(func(evs *events) error {
		if clearBefore {
			if err := w.clear(evs); err != nil {
				return err
			}
		} else {
			for _, id := range ids {
				if w.storage.HasEntity(id) {
					return DuplicateEntityError{ID: id}
				}
			}
		}
		for i, entity := range snap.Entities {
			if err := w.createEntity(ids[i], entity.Name, entity.Enabled, decoded[i], evs); err != nil {
				return eris.Wrapf(err, "failed to restore entity %d", entity.LocalID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// EncodeSnapshot writes snap as YAML
func EncodeSnapshot(out io.Writer, snap Snapshot) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return eris.Wrap(err, "failed to encode snapshot")
	}
	return enc.Close()
}

func DecodeSnapshot(in io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := yaml.NewDecoder(in).Decode(&snap); err != nil {
		return Snapshot{}, eris.Wrap(err, "failed to decode snapshot")
	}
	return snap, nil
}
