package orchard

import (
	"slices"
	"strconv"
	"strings"

	"github.com/TheBitDrifter/mask"
)

// MaxArchetypeWidth bounds the components of one entity across all slots.
// Every slot and the entity id take one table row, and a table marks its
// rows in a mask.
const MaxArchetypeWidth = mask.MaxBits - 1

// Signature is the sorted set of component types of an archetype together
// with how many instances of each type a row holds.
type Signature struct {
	mask  mask.Mask
	types []ComponentTypeID
	slots []int
	key   string
}

func newSignature(counts map[ComponentTypeID]int) Signature {
	types := make([]ComponentTypeID, 0, len(counts))
	for id, n := range counts {
		if n > 0 {
			types = append(types, id)
		}
	}
	slices.Sort(types)

	sig := Signature{
		types: types,
		slots: make([]int, len(types)),
	}
	var sb strings.Builder
	for i, id := range types {
		sig.slots[i] = counts[id]
		sig.mask.Mark(uint32(id))
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(id), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(counts[id]))
	}
	sig.key = sb.String()
	return sig
}

// signatureOf resolves the component types of values. Components of the same
// type keep their relative order as slots.
func signatureOf(values []any) (Signature, error) {
	counts := make(map[ComponentTypeID]int, len(values))
	for _, v := range values {
		info, err := infoOf(v)
		if err != nil {
			return Signature{}, err
		}
		counts[info.id]++
	}
	if len(values) > MaxArchetypeWidth {
		return Signature{}, ArchetypeWidthError{Width: len(values), Limit: MaxArchetypeWidth}
	}
	return newSignature(counts), nil
}

func (s Signature) Mask() mask.Mask { return s.mask }

func (s Signature) Key() string { return s.key }

// Types returns the component types in signature order
func (s Signature) Types() []ComponentTypeID {
	return slices.Clone(s.types)
}

// Len is the number of distinct component types
func (s Signature) Len() int { return len(s.types) }

// Width is the number of components a row holds across all slots
func (s Signature) Width() int {
	total := 0
	for _, n := range s.slots {
		total += n
	}
	return total
}

func (s Signature) Contains(id ComponentTypeID) bool {
	_, ok := s.indexOf(id)
	return ok
}

// Slots returns the per-row instance count of id, zero when absent
func (s Signature) Slots(id ComponentTypeID) int {
	i, ok := s.indexOf(id)
	if !ok {
		return 0
	}
	return s.slots[i]
}

func (s Signature) indexOf(id ComponentTypeID) (int, bool) {
	return slices.BinarySearch(s.types, id)
}

// flatten maps a flattened component index onto a (type, slot) pair
func (s Signature) flatten(index int) (ComponentTypeID, int, bool) {
	if index < 0 {
		return 0, 0, false
	}
	for i, n := range s.slots {
		if index < n {
			return s.types[i], index, true
		}
		index -= n
	}
	return 0, 0, false
}

func (s Signature) less(other Signature) bool {
	if len(s.types) != len(other.types) {
		return len(s.types) < len(other.types)
	}
	return s.key < other.key
}
