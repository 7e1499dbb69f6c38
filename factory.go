package orchard

import "fmt"

type factory struct{}

var Factory factory

func (f factory) NewWorld(opts ...WorldOption) *World {
	return newWorld(opts...)
}

// NewStorage returns a standalone storage. Worlds own their storage; this is
// meant for staging entities before merging them with Storage.Append.
func (f factory) NewStorage() *Storage {
	return newStorage()
}

func (f factory) NewQuery() QueryBuilder {
	return newQuery()
}

// FactoryNewComponent registers T and returns its typed accessor. It panics
// when the registry is full.
func FactoryNewComponent[T any]() AccessibleComponent[T] {
	ct, err := RegisterComponent[T]()
	if err != nil {
		panic(fmt.Sprintf("orchard: %v", err))
	}
	return AccessibleComponent[T]{ComponentType: ct}
}

// FactoryNewScriptComponent registers a script component type by name. It
// panics when the name is taken by a native type or the registry is full.
func FactoryNewScriptComponent(name string) ComponentType {
	ct, err := RegisterScriptComponent(name)
	if err != nil {
		panic(fmt.Sprintf("orchard: %v", err))
	}
	return ct
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return newSimpleCache[T](cap)
}

func (f factory) NewCursor(query *Query) *Cursor {
	return newCursor(query)
}
