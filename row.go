package orchard

// rowView reads one row. It is only valid while the view that produced it is
// open and its row lock is held.
type rowView struct {
	world *World
	arch  *Archetype
	index int
}

func (v rowView) ID() EntityId {
	return v.arch.ids[v.index]
}

func (v rowView) Name() string {
	return v.arch.names[v.index]
}

func (v rowView) Enabled() bool {
	return v.arch.isEnabled(v.index)
}

func (v rowView) Archetype() *Archetype {
	return v.arch
}

// Components copies every component of the row in signature order
func (v rowView) Components() []any {
	return v.arch.components(v.index)
}

// Get returns a copy of the component of type c at slot
func (v rowView) Get(c Component, slot int) (any, error) {
	value, ok := v.arch.get(v.index, c.Type().id, slot)
	if !ok {
		return nil, ComponentNotFoundError{ID: v.ID(), Type: c.Type()}
	}
	return value, nil
}

// Has reports whether the row holds c
func (v rowView) Has(c Component) bool {
	return v.arch.signature.Contains(c.Type().id)
}

// SliceLen is the number of instances of c the row holds
func (v rowView) SliceLen(c Component) int {
	return v.arch.signature.Slots(c.Type().id)
}

// Reference returns a stable handle to the row's entity
func (v rowView) Reference() (EntityReference, bool) {
	return v.world.EntityReference(v.ID())
}

func (v rowView) has(id ComponentTypeID, slot int) bool {
	return slot >= 0 && slot < v.arch.signature.Slots(id)
}

func (v rowView) pointer(c Component, slot int) (any, error) {
	ptr, ok := v.arch.pointer(v.index, c.Type().id, slot)
	if !ok {
		return nil, ComponentNotFoundError{ID: v.ID(), Type: c.Type()}
	}
	return ptr, nil
}

func (v rowView) set(c Component, slot int, value any) error {
	found, err := v.arch.set(v.index, c.Type().id, slot, value)
	if !found {
		return ComponentNotFoundError{ID: v.ID(), Type: c.Type()}
	}
	return err
}

// Row is the entity handed to query callbacks
type Row struct {
	rowView
	write bool
}

// Writable reports whether the row lock is held exclusively
func (r *Row) Writable() bool {
	return r.write
}

// Pointer returns a *T pointing into storage for the component of type c
func (r *Row) Pointer(c Component, slot int) (any, error) {
	if !r.write {
		return nil, ReadOnlyAccessError{ID: r.ID()}
	}
	return r.pointer(c, slot)
}

func (r *Row) Set(c Component, slot int, value any) error {
	if !r.write {
		return ReadOnlyAccessError{ID: r.ID()}
	}
	return r.set(c, slot, value)
}

func (r *Row) SetEnabled(enabled bool) error {
	if !r.write {
		return ReadOnlyAccessError{ID: r.ID()}
	}
	r.arch.setEnabled(r.index, enabled)
	return nil
}
