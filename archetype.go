package orchard

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	iter_util "github.com/TheBitDrifter/util/iter"
	"github.com/rotisserie/eris"
)

var _ mask.Maskable = &Archetype{}

type archetypeID uint32

// Archetype stores every entity sharing one exact signature. Component values
// live in a table with one element type per component slot. The entity id,
// name and lock of each row live in side arrays kept in step with the table.
type Archetype struct {
	id        archetypeID
	signature Signature
	table     table.Table
	// elements[i][slot] is the element type of signature type i
	elements [][]table.ElementType
	ids      []EntityId
	names    []string
	locks    []*rowLock
}

// EntityRecord is everything a row held, returned when it is excised
type EntityRecord struct {
	ID         EntityId
	Name       string
	Enabled    bool
	Components []any
}

func newArchetype(id archetypeID, sig Signature, entryIndex table.EntryIndex) (*Archetype, error) {
	a := &Archetype{
		id:        id,
		signature: sig,
		elements:  make([][]table.ElementType, len(sig.types)),
	}
	elementTypes := []table.ElementType{entityIDElement}
	for i, typeID := range sig.types {
		a.elements[i] = elementTypesFor(typeID, sig.slots[i])
		elementTypes = append(elementTypes, a.elements[i]...)
	}

	tableMu.Lock()
	tbl, err := table.NewTableBuilder().
		WithSchema(newRowSchema(elementTypes...)).
		WithEntryIndex(entryIndex).
		WithElementTypes(elementTypes...).
		WithEvents(rowEvents{a: a}).
		Build()
	tableMu.Unlock()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to build table for signature %q", sig.key)
	}
	a.table = tbl
	return a, nil
}

func (a *Archetype) ID() uint32 {
	return uint32(a.id)
}

func (a *Archetype) Signature() Signature {
	return a.signature
}

func (a *Archetype) Mask() mask.Mask {
	return a.signature.mask
}

func (a *Archetype) Len() int {
	return len(a.ids)
}

// Table exposes the column store of a. Rows must not be added or removed
// through it.
func (a *Archetype) Table() table.Table {
	return a.table
}

// group sorts components by signature type, validating them against the
// signature
func (a *Archetype) group(components []any) ([][]any, error) {
	grouped := make([][]any, len(a.elements))
	for _, c := range components {
		info, err := infoOf(c)
		if err != nil {
			return nil, err
		}
		idx, ok := a.signature.indexOf(info.id)
		if !ok {
			return nil, InvariantViolationError{
				Archetype: a.ID(),
				Detail:    fmt.Sprintf("component %s is not part of signature %q", info.name, a.signature.key),
			}
		}
		grouped[idx] = append(grouped[idx], c)
	}
	for i, values := range grouped {
		if len(values) != a.signature.slots[i] {
			return nil, InvariantViolationError{
				Archetype: a.ID(),
				Detail: fmt.Sprintf("component %s needs %d instances, got %d",
					infoFor(a.signature.types[i]).name, a.signature.slots[i], len(values)),
			}
		}
	}
	return grouped, nil
}

// addEntity appends a row. Components are validated against the signature
// before anything is stored.
func (a *Archetype) addEntity(id EntityId, name string, enabled bool, components []any) (int, error) {
	grouped, err := a.group(components)
	if err != nil {
		return -1, err
	}
	if _, err := a.table.NewEntries(1); err != nil {
		return -1, eris.Wrapf(err, "failed to add a row to archetype %d", a.ID())
	}
	row := len(a.ids) - 1
	a.ids[row] = id
	a.names[row] = name
	a.locks[row] = newRowLock(enabled)

	if err := a.table.Set(entityIDElement, reflect.ValueOf(id), row); err != nil {
		return -1, a.discard(row, err)
	}
	for i, values := range grouped {
		for slot, v := range values {
			if err := a.table.Set(a.elements[i][slot], reflect.ValueOf(v), row); err != nil {
				return -1, a.discard(row, err)
			}
		}
	}
	return row, nil
}

// discard drops a freshly added last row after a failed write
func (a *Archetype) discard(row int, cause error) error {
	if _, err := a.table.DeleteEntries(row); err != nil {
		return eris.Wrapf(err, "failed to discard row %d of archetype %d", row, a.ID())
	}
	zeroTail(a.table, 1)
	return eris.Wrapf(cause, "failed to store row %d of archetype %d", row, a.ID())
}

// removeEntity excises row by moving the last row into its place. When a row
// was moved, its entity id is returned with moved set.
func (a *Archetype) removeEntity(row int) (rec EntityRecord, movedID EntityId, moved bool, err error) {
	last := len(a.ids) - 1
	rec = EntityRecord{
		ID:         a.ids[row],
		Name:       a.names[row],
		Enabled:    a.isEnabled(row),
		Components: a.components(row),
	}
	if _, err := a.table.DeleteEntries(row); err != nil {
		return rec, 0, false, eris.Wrapf(err, "failed to remove row %d of archetype %d", row, a.ID())
	}
	zeroTail(a.table, 1)
	if row != last {
		movedID, moved = a.ids[row], true
	}
	return rec, movedID, moved, nil
}

// append moves every row of other, which must share the signature, onto a.
// It returns the row index of the first moved row.
func (a *Archetype) append(other *Archetype) (int, error) {
	if other.signature.key != a.signature.key {
		return -1, InvariantViolationError{
			Archetype: a.ID(),
			Detail:    fmt.Sprintf("cannot append signature %q onto %q", other.signature.key, a.signature.key),
		}
	}
	start, n := a.Len(), other.Len()
	if n == 0 {
		return start, nil
	}
	if _, err := a.table.NewEntries(n); err != nil {
		return -1, eris.Wrapf(err, "failed to add %d rows to archetype %d", n, a.ID())
	}
	for et := range a.table.ElementTypes() {
		for row := range n {
			v, err := other.table.Get(et, row)
			if err != nil {
				return -1, err
			}
			if err := a.table.Set(et, v, start+row); err != nil {
				return -1, err
			}
		}
	}
	copy(a.ids[start:], other.ids)
	copy(a.names[start:], other.names)
	copy(a.locks[start:], other.locks)
	return start, other.truncate()
}

func (a *Archetype) clear() error {
	return a.truncate()
}

// truncate removes every row
func (a *Archetype) truncate() error {
	n := a.Len()
	if n == 0 {
		return nil
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	if _, err := a.table.DeleteEntries(rows...); err != nil {
		return eris.Wrapf(err, "failed to clear archetype %d", a.ID())
	}
	zeroTail(a.table, n)
	return nil
}

func (a *Archetype) isEnabled(row int) bool {
	return a.locks[row].enabled.Load()
}

func (a *Archetype) setEnabled(row int, enabled bool) {
	a.locks[row].enabled.Store(enabled)
}

// Rows yields the row index and entity id of every row
func (a *Archetype) Rows() iter.Seq2[int, EntityId] {
	return func(yield func(int, EntityId) bool) {
		for row, id := range a.ids {
			if !yield(row, id) {
				return
			}
		}
	}
}

// Components yields every component of row in signature order, slots in order
func (a *Archetype) Components(row int) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, slots := range a.elements {
			for _, et := range slots {
				v, err := a.table.Get(et, row)
				if err != nil {
					return
				}
				if !yield(v.Interface()) {
					return
				}
			}
		}
	}
}

func (a *Archetype) components(row int) []any {
	return iter_util.Collect(a.Components(row))
}

// element returns the element type holding slot of component type id
func (a *Archetype) element(id ComponentTypeID, slot int) (table.ElementType, bool) {
	idx, ok := a.signature.indexOf(id)
	if !ok || slot < 0 || slot >= len(a.elements[idx]) {
		return nil, false
	}
	return a.elements[idx][slot], true
}

// SliceLen returns how many instances of id the rows of a hold
func (a *Archetype) SliceLen(id ComponentTypeID) int {
	return a.signature.Slots(id)
}

// value returns the addressable stored value of a component slot
func (a *Archetype) value(row int, id ComponentTypeID, slot int) (reflect.Value, bool) {
	et, ok := a.element(id, slot)
	if !ok || row < 0 || row >= a.Len() {
		return reflect.Value{}, false
	}
	v, err := a.table.Get(et, row)
	if err != nil {
		return reflect.Value{}, false
	}
	return v, true
}

func (a *Archetype) get(row int, id ComponentTypeID, slot int) (any, bool) {
	v, ok := a.value(row, id, slot)
	if !ok {
		return nil, false
	}
	return v.Interface(), true
}

// pointer returns a *T into the table, valid until the next structural change
func (a *Archetype) pointer(row int, id ComponentTypeID, slot int) (any, bool) {
	v, ok := a.value(row, id, slot)
	if !ok {
		return nil, false
	}
	return v.Addr().Interface(), true
}

// set overwrites a component slot in place, leaving the table's row cache
// untouched. It reports false when the row does not hold the slot.
func (a *Archetype) set(row int, id ComponentTypeID, slot int, value any) (bool, error) {
	v, ok := a.value(row, id, slot)
	if !ok {
		return false, nil
	}
	nv := reflect.ValueOf(value)
	if !nv.IsValid() || nv.Type() != v.Type() {
		return true, TypeMismatchError{Want: v.Type().String(), Got: fmt.Sprintf("%T", value)}
	}
	v.Set(nv)
	return true, nil
}
