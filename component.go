package orchard

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/TheBitDrifter/table"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MaxComponentTypes bounds the registry, every type owns one signature bit
const MaxComponentTypes = 64

// ComponentTypeID identifies a registered component type for the lifetime of the process
type ComponentTypeID uint32

// ComponentType is the comparable handle of a registered component type
type ComponentType struct {
	id   ComponentTypeID
	name string
}

func (c ComponentType) ID() ComponentTypeID { return c.id }
func (c ComponentType) Name() string        { return c.name }

// Type lets a bare ComponentType be used anywhere a Component is expected
func (c ComponentType) Type() ComponentType { return c }

func (c ComponentType) String() string {
	return fmt.Sprintf("%s#%d", c.name, c.id)
}

// componentInfo is the capability table of one component type
type componentInfo struct {
	ComponentType
	goType    reflect.Type
	script    bool
	encode    func(value any, remap func(EntityId) EntityId) (any, error)
	decode    func(node *yaml.Node, remap func(EntityId) EntityId) (any, error)

	// elements[slot] is the table element type storing instance slot. They
	// are minted on first use under the registry lock.
	newElement func() table.ElementType
	elements   []table.ElementType
}

type componentRegistry struct {
	mu       sync.RWMutex
	cache    *SimpleCache[componentInfo]
	byGoType map[reflect.Type]ComponentTypeID
}

var registry = &componentRegistry{
	cache:    newSimpleCache[componentInfo](MaxComponentTypes),
	byGoType: make(map[reflect.Type]ComponentTypeID),
}

// RegisterComponent registers T and returns its type handle.
// Registering the same T twice returns the existing handle.
func RegisterComponent[T any]() (ComponentType, error) {
	goType := reflect.TypeFor[T]()
	if goType == scriptComponentType {
		return ComponentType{}, eris.New("script components are registered by name")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if id, ok := registry.byGoType[goType]; ok {
		return registry.cache.GetItem32(uint32(id)).ComponentType, nil
	}

	name := goType.String()
	idx, err := registry.cache.Register(name, componentInfo{})
	if err != nil {
		return ComponentType{}, eris.Wrapf(err, "failed to register component %s", name)
	}
	info := registry.cache.GetItem(idx)
	*info = componentInfo{
		ComponentType: ComponentType{id: ComponentTypeID(idx), name: name},
		goType:        goType,
		encode:        encodeTyped[T],
		decode:        decodeTyped[T],
		newElement:    table.FactoryNewElementType[T],
	}
	registry.byGoType[goType] = info.id
	return info.ComponentType, nil
}

// RegisterScriptComponent registers a component type known only by name.
// Values of that type are ScriptComponent with a matching TypeName.
func RegisterScriptComponent(name string) (ComponentType, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if idx, ok := registry.cache.GetIndex(name); ok {
		info := registry.cache.GetItem(idx)
		if info.script {
			return info.ComponentType, nil
		}
		return ComponentType{}, DuplicateComponentTypeError{Name: name}
	}
	idx, err := registry.cache.Register(name, componentInfo{})
	if err != nil {
		return ComponentType{}, eris.Wrapf(err, "failed to register script component %s", name)
	}
	info := registry.cache.GetItem(idx)
	*info = componentInfo{
		ComponentType: ComponentType{id: ComponentTypeID(idx), name: name},
		goType:        scriptComponentType,
		script:        true,
		encode:        encodeTyped[ScriptComponent],
		decode:        decodeScript(name),
		newElement:    table.FactoryNewElementType[ScriptComponent],
	}
	return info.ComponentType, nil
}

// ComponentTypeOf resolves the registered type of a component value
func ComponentTypeOf(value any) (ComponentType, error) {
	info, err := infoOf(value)
	if err != nil {
		return ComponentType{}, err
	}
	return info.ComponentType, nil
}

// ComponentTypeByName looks a registered type up by its registry name
func ComponentTypeByName(name string) (ComponentType, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	idx, ok := registry.cache.GetIndex(name)
	if !ok {
		return ComponentType{}, false
	}
	info := registry.cache.GetItem(idx)
	if info == nil {
		return ComponentType{}, false
	}
	return info.ComponentType, true
}

// Downcast converts a dynamically typed component into T
func Downcast[T any](value any) (T, error) {
	v, ok := value.(T)
	if !ok {
		var zero T
		return zero, TypeMismatchError{Want: reflect.TypeFor[T]().String(), Got: fmt.Sprintf("%T", value)}
	}
	return v, nil
}

func infoOf(value any) (*componentInfo, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	if sc, ok := value.(ScriptComponent); ok {
		idx, found := registry.cache.GetIndex(sc.TypeName)
		if !found {
			return nil, UnregisteredComponentError{Value: value}
		}
		info := registry.cache.GetItem(idx)
		if !info.script {
			return nil, UnregisteredComponentError{Value: value}
		}
		return info, nil
	}
	id, ok := registry.byGoType[reflect.TypeOf(value)]
	if !ok {
		return nil, UnregisteredComponentError{Value: value}
	}
	return registry.cache.GetItem32(uint32(id)), nil
}

func infoFor(id ComponentTypeID) *componentInfo {
	info := registry.cache.GetItem32(uint32(id))
	if info == nil {
		panic(fmt.Sprintf("orchard: unknown component type id %d", id))
	}
	return info
}

// elementTypesFor returns the element types of the first slots instances of
// id. Each script type name owns its own element types even though they all
// store ScriptComponent.
func elementTypesFor(id ComponentTypeID, slots int) []table.ElementType {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	info := infoFor(id)
	for len(info.elements) < slots {
		info.elements = append(info.elements, info.newElement())
	}
	return slices.Clone(info.elements[:slots])
}

func encodeTyped[T any](value any, remap func(EntityId) EntityId) (any, error) {
	v, err := Downcast[T](value)
	if err != nil {
		return nil, err
	}
	if remap != nil {
		if remapper, ok := any(&v).(EntityRemapper); ok {
			remapper.RemapEntities(remap)
		}
	}
	return v, nil
}

func decodeTyped[T any](node *yaml.Node, remap func(EntityId) EntityId) (any, error) {
	var v T
	if err := node.Decode(&v); err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", reflect.TypeFor[T]())
	}
	if remap != nil {
		if remapper, ok := any(&v).(EntityRemapper); ok {
			remapper.RemapEntities(remap)
		}
	}
	return v, nil
}
