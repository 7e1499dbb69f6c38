package orchard

import "reflect"

// AccessibleComponent extends a ComponentType with typed access into rows,
// guards and references
type AccessibleComponent[T any] struct {
	ComponentType
}

// GetFromRow returns the first instance of the component in row, or nil when
// the row does not hold it
func (c AccessibleComponent[T]) GetFromRow(row *Row) *T {
	ptr, _ := c.typed(row.rowView, 0)
	return ptr
}

// GetSlotFromRow returns the instance at slot, or nil when absent
func (c AccessibleComponent[T]) GetSlotFromRow(row *Row, slot int) *T {
	ptr, _ := c.typed(row.rowView, slot)
	return ptr
}

// GetFromRowSafe reports whether the component exists before returning it
func (c AccessibleComponent[T]) GetFromRowSafe(row *Row) (bool, *T) {
	ptr, err := c.typed(row.rowView, 0)
	if err != nil {
		return false, nil
	}
	return true, ptr
}

// CheckRow determines if the component exists in the row's archetype
func (c AccessibleComponent[T]) CheckRow(row *Row) bool {
	return row.Has(c)
}

// GetFromGuard returns a copy of the first instance held by the guarded entity
func (c AccessibleComponent[T]) GetFromGuard(g *EntityReadGuard) (T, error) {
	ptr, err := c.typed(g.rowView, 0)
	if err != nil {
		var zero T
		return zero, err
	}
	return *ptr, nil
}

// GetFromWriteGuard returns a pointer into storage valid until the guard is
// released
func (c AccessibleComponent[T]) GetFromWriteGuard(g *EntityWriteGuard) (*T, error) {
	return c.typed(g.rowView, 0)
}

// GetFromComponentGuard returns the guarded component as T
func (c AccessibleComponent[T]) GetFromComponentGuard(g *ComponentWriteGuard) (*T, error) {
	if g.typ != c.ComponentType {
		return nil, TypeMismatchError{Want: c.name, Got: g.typ.name}
	}
	return c.typed(g.rowView, g.slot)
}

// Each yields every instance of the component in row
func (c AccessibleComponent[T]) Each(row *Row) []*T {
	n := row.SliceLen(c)
	out := make([]*T, 0, n)
	for slot := range n {
		if ptr, err := c.typed(row.rowView, slot); err == nil {
			out = append(out, ptr)
		}
	}
	return out
}

func (c AccessibleComponent[T]) typed(v rowView, slot int) (*T, error) {
	stored, ok := v.arch.value(v.index, c.id, slot)
	if !ok {
		return nil, ComponentNotFoundError{ID: v.ID(), Type: c.ComponentType}
	}
	ptr, ok := stored.Addr().Interface().(*T)
	if !ok {
		return nil, TypeMismatchError{Want: reflect.TypeFor[T]().String(), Got: c.name}
	}
	return ptr, nil
}

// GetFromCursor retrieves the component of the row the cursor stopped at
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	return c.GetFromRow(cursor.Row())
}
