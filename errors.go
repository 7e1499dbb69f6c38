package orchard

import "fmt"

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return "storage is currently locked"
}

type DuplicateEntityError struct {
	ID EntityId
}

func (e DuplicateEntityError) Error() string {
	return fmt.Sprintf("entity %d already exists", e.ID)
}

type EntityNotFoundError struct {
	ID EntityId
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %d not found", e.ID)
}

type ComponentNotFoundError struct {
	ID   EntityId
	Type ComponentType
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component %s does not exist on entity %d", e.Type.Name(), e.ID)
}

// ComponentIndexError is returned when a flattened component index is out of
// the entity's component range.
type ComponentIndexError struct {
	ID    EntityId
	Index int
	Len   int
}

func (e ComponentIndexError) Error() string {
	return fmt.Sprintf("component index %d out of range [0,%d) on entity %d", e.Index, e.Len, e.ID)
}

type DeletedReferenceError struct {
	ID EntityId
}

func (e DeletedReferenceError) Error() string {
	return fmt.Sprintf("reference to entity %d points to deleted data", e.ID)
}

type TypeMismatchError struct {
	Want string
	Got  string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("component type mismatch: want %s, got %s", e.Want, e.Got)
}

// InvariantViolationError reports a programmer error: a component fed to an
// archetype whose signature does not contain it.
type InvariantViolationError struct {
	Archetype uint32
	Detail    string
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("archetype %d invariant violated: %s", e.Archetype, e.Detail)
}

type UnregisteredComponentError struct {
	Value any
}

func (e UnregisteredComponentError) Error() string {
	return fmt.Sprintf("component type is not registered: %T", e.Value)
}

type DuplicateComponentTypeError struct {
	Name string
}

func (e DuplicateComponentTypeError) Error() string {
	return fmt.Sprintf("component type %q already registered", e.Name)
}

type ComponentTypeLimitError struct {
	Limit int
}

func (e ComponentTypeLimitError) Error() string {
	return fmt.Sprintf("component type registry full (%d types)", e.Limit)
}

// ArchetypeWidthError is returned for an entity holding more components than
// one archetype row can store
type ArchetypeWidthError struct {
	Width int
	Limit int
}

func (e ArchetypeWidthError) Error() string {
	return fmt.Sprintf("entity holds %d components, at most %d are allowed", e.Width, e.Limit)
}

// ReadOnlyAccessError is returned when writing through a row held shared
type ReadOnlyAccessError struct {
	ID EntityId
}

func (e ReadOnlyAccessError) Error() string {
	return fmt.Sprintf("entity %d is held read-only", e.ID)
}

type ReservedEntityIDError struct{}

func (e ReservedEntityIDError) Error() string {
	return "entity id 0 is reserved"
}
