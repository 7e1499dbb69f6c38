package orchard

import (
	"reflect"
	"slices"
	"sync"

	"github.com/TheBitDrifter/table"
)

var (
	_ table.Schema      = &rowSchema{}
	_ table.TableEvents = rowEvents{}
)

// entityIDElement is the table row holding the entity id of every archetype
// row, so that tables of component-less archetypes still have an element
var entityIDElement = table.FactoryNewElementType[EntityId]()

// tableMu serializes table construction. The table package records the entry
// index of every table in a process wide map.
var tableMu sync.Mutex

// rowSchema maps the element types of one archetype onto dense table rows.
// It is filled before the table is built and only read afterwards.
type rowSchema struct {
	rows map[table.ElementTypeID]uint32
}

func newRowSchema(elementTypes ...table.ElementType) *rowSchema {
	s := &rowSchema{rows: make(map[table.ElementTypeID]uint32, len(elementTypes))}
	s.Register(elementTypes...)
	return s
}

func (s *rowSchema) Register(elementTypes ...table.ElementType) {
	for _, et := range elementTypes {
		if _, ok := s.rows[et.ID()]; !ok {
			s.rows[et.ID()] = uint32(len(s.rows))
		}
	}
}

func (s *rowSchema) Registered() int {
	return len(s.rows)
}

func (s *rowSchema) Contains(et table.ElementType) bool {
	_, ok := s.rows[et.ID()]
	return ok
}

func (s *rowSchema) ContainsAll(elementTypes ...table.ElementType) bool {
	for _, et := range elementTypes {
		if !s.Contains(et) {
			return false
		}
	}
	return true
}

func (s *rowSchema) RowIndexFor(et table.ElementType) uint32 {
	return s.rows[et.ID()]
}

func (s *rowSchema) RowIndexForID(id table.ElementTypeID) uint32 {
	return s.rows[id]
}

// rowEvents keeps the per-row side arrays of an archetype in step with its
// table
type rowEvents struct {
	a *Archetype
}

func (e rowEvents) OnBeforeEntriesCreated(int) error { return nil }

// OnAfterEntriesCreated reserves side array slots for the new rows. The
// caller fills them in.
func (e rowEvents) OnAfterEntriesCreated(entries []table.Entry) {
	a := e.a
	for range entries {
		a.ids = append(a.ids, 0)
		a.names = append(a.names, "")
		a.locks = append(a.locks, nil)
	}
}

// OnBeforeEntriesDeleted applies the table's deletion order to the side
// arrays: indices are visited from the highest down and each one below the
// current tail is swapped with it before the tail is dropped.
func (e rowEvents) OnBeforeEntriesDeleted(indices []int) error {
	a := e.a
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	n := len(a.ids)
	if len(sorted) == 0 || len(sorted) > n {
		return table.BatchOperationError{Count: len(sorted)}
	}
	for _, idx := range sorted {
		if idx < 0 || idx >= n {
			return table.AccessError{Index: idx, UpperBound: n}
		}
	}
	end := n - 1
	for _, idx := range slices.Backward(sorted) {
		if idx < end {
			a.ids[idx], a.ids[end] = a.ids[end], a.ids[idx]
			a.names[idx], a.names[end] = a.names[end], a.names[idx]
			a.locks[idx], a.locks[end] = a.locks[end], a.locks[idx]
		}
		end--
	}
	tail := n - len(sorted)
	clear(a.ids[tail:])
	clear(a.names[tail:])
	clear(a.locks[tail:])
	a.ids = a.ids[:tail]
	a.names = a.names[:tail]
	a.locks = a.locks[:tail]
	return nil
}

func (e rowEvents) OnAfterEntriesDeleted([]table.EntryID) {}

// zeroTail clears count values past the end of every table row so removed
// components are not retained
func zeroTail(tbl table.Table, count int) {
	n := tbl.Length()
	for _, row := range tbl.Rows() {
		tail := reflect.Value(row).Slice(n, n+count)
		for i := range count {
			tail.Index(i).SetZero()
		}
	}
}
