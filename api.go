package orchard

import "github.com/TheBitDrifter/mask"

// Component is anything that names a component type: a ComponentType or an
// AccessibleComponent.
type Component interface {
	Type() ComponentType
}

// EntityRemapper is implemented by components holding references to other
// entities. Snapshots call it with a real-to-local mapping, restores with a
// local-to-real one. Implementations must not mutate storage shared with the
// original value (maps, slices), they operate on a copy.
type EntityRemapper interface {
	RemapEntities(remap func(EntityId) EntityId)
}

// ExtensionProvider resolves the components attached automatically next to
// a component when it is placed on an entity
type ExtensionProvider interface {
	Extensions(component any) []any
}

type QueryBuilder interface {
	QueryNode
	And(items ...any) QueryNode
	Or(items ...any) QueryNode
	Not(items ...any) QueryNode
	Any() QueryNode
	Has(items ...Component) QueryNode
}

type QueryNode interface {
	Evaluate(archetype mask.Maskable) bool
	// Writes reports whether any parameter needs exclusive row access
	Writes() bool
}

type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	GetItem32(uint32) *T
	Register(string, T) (int, error)
	Len() int
}
