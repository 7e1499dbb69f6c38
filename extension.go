package orchard

import (
	"reflect"
	"sync"

	"github.com/rotisserie/eris"
)

var _ ExtensionProvider = &ExtensionRegistry{}

// ExtensionRegistry resolves extensions by the component's registered type
type ExtensionRegistry struct {
	mu       sync.RWMutex
	builders map[ComponentTypeID][]func(any) []any
}

func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{builders: make(map[ComponentTypeID][]func(any) []any)}
}

// RegisterExtension adds a builder run for every T placed on an entity. The
// components it returns are attached alongside T.
func RegisterExtension[T any](r *ExtensionRegistry, build func(T) []any) error {
	ct, err := RegisterComponent[T]()
	if err != nil {
		return eris.Wrapf(err, "failed to register extension for %s", reflect.TypeFor[T]())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[ct.id] = append(r.builders[ct.id], func(v any) []any {
		typed, ok := v.(T)
		if !ok {
			return nil
		}
		return build(typed)
	})
	return nil
}

// RegisterScriptExtension adds a builder for a script component type
func (r *ExtensionRegistry) RegisterScriptExtension(ct ComponentType, build func(ScriptComponent) []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[ct.id] = append(r.builders[ct.id], func(v any) []any {
		sc, ok := v.(ScriptComponent)
		if !ok {
			return nil
		}
		return build(sc)
	})
}

func (r *ExtensionRegistry) Extensions(component any) []any {
	info, err := infoOf(component)
	if err != nil {
		return nil
	}
	r.mu.RLock()
	builders := r.builders[info.id]
	r.mu.RUnlock()

	var out []any
	for _, build := range builders {
		out = append(out, build(component)...)
	}
	return out
}
