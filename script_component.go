package orchard

import (
	"maps"
	"reflect"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

var scriptComponentType = reflect.TypeFor[ScriptComponent]()

var _ EntityRemapper = &ScriptComponent{}

// ScriptComponent is a component authored by a script runtime. Its type is
// the registered TypeName, not its Go type.
type ScriptComponent struct {
	TypeName string         `yaml:"-"`
	Fields   map[string]any `yaml:"fields"`
	// Refs names the fields holding entity ids
	Refs []string `yaml:"refs,omitempty"`
}

// NewScriptComponent builds a value for a previously registered script type
func NewScriptComponent(typeName string, fields map[string]any, refs ...string) ScriptComponent {
	if fields == nil {
		fields = make(map[string]any)
	}
	return ScriptComponent{TypeName: typeName, Fields: fields, Refs: refs}
}

func (c ScriptComponent) Get(field string) (any, bool) {
	v, ok := c.Fields[field]
	return v, ok
}

// RemapEntities copies Fields before rewriting the referenced ids
func (c *ScriptComponent) RemapEntities(remap func(EntityId) EntityId) {
	if len(c.Refs) == 0 {
		return
	}
	fields := maps.Clone(c.Fields)
	for _, name := range c.Refs {
		switch v := fields[name].(type) {
		case EntityId:
			fields[name] = remap(v)
		case int:
			fields[name] = remap(EntityId(v))
		case uint64:
			fields[name] = remap(EntityId(v))
		}
	}
	c.Fields = fields
}

func decodeScript(name string) func(*yaml.Node, func(EntityId) EntityId) (any, error) {
	return func(node *yaml.Node, remap func(EntityId) EntityId) (any, error) {
		var c ScriptComponent
		if err := node.Decode(&c); err != nil {
			return nil, eris.Wrapf(err, "failed to decode script component %s", name)
		}
		c.TypeName = name
		if c.Fields == nil {
			c.Fields = make(map[string]any)
		}
		if remap != nil {
			c.RemapEntities(remap)
		}
		return c, nil
	}
}
