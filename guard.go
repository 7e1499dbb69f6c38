package orchard

import "sync"

// guard owns a row lock and the view keeping the row in place
type guard struct {
	world *World
	lock  *rowLock
	write bool
	once  sync.Once
}

// Release drops the row lock. Calling it more than once is a no-op.
func (g *guard) Release() {
	g.once.Do(func() {
		g.lock.unlock(g.write)
		g.world.endView()
	})
}

// EntityReadGuard gives shared access to an entity's row until released
type EntityReadGuard struct {
	rowView
	*guard
}

// EntityWriteGuard gives exclusive access to an entity's row until released
type EntityWriteGuard struct {
	rowView
	*guard
}

// Pointer returns a *T into storage, valid until Release
func (g *EntityWriteGuard) Pointer(c Component, slot int) (any, error) {
	return g.pointer(c, slot)
}

func (g *EntityWriteGuard) Set(c Component, slot int, value any) error {
	return g.set(c, slot, value)
}

func (g *EntityWriteGuard) SetEnabled(enabled bool) {
	g.arch.setEnabled(g.index, enabled)
}

func (g *EntityWriteGuard) SetName(name string) {
	g.arch.names[g.index] = name
}

// ComponentReadGuard gives shared access to one component slot
type ComponentReadGuard struct {
	rowView
	*guard
	typ  ComponentType
	slot int
}

func (g *ComponentReadGuard) Type() ComponentType {
	return g.typ
}

// Value returns a copy of the guarded component
func (g *ComponentReadGuard) Value() any {
	v, _ := g.arch.get(g.index, g.typ.id, g.slot)
	return v
}

// ComponentWriteGuard gives exclusive access to one component slot
type ComponentWriteGuard struct {
	ComponentReadGuard
}

// Pointer returns a *T into storage, valid until Release
func (g *ComponentWriteGuard) Pointer() any {
	p, _ := g.arch.pointer(g.index, g.typ.id, g.slot)
	return p
}

func (g *ComponentWriteGuard) Set(value any) error {
	return g.set(g.typ, g.slot, value)
}
