package orchard

import (
	"github.com/TheBitDrifter/mask"
)

type Operation int

const (
	OpAnd Operation = iota
	OpOr
	OpNot
)

// Access marks a query parameter as shared or exclusive. Components passed
// without a marker are exclusive.
type Access struct {
	Component
	write bool
}

// Read marks c as a read-only query parameter
func Read(c Component) Access {
	return Access{Component: c}
}

// Write marks c as a query parameter requiring exclusive row access
func Write(c Component) Access {
	return Access{Component: c, write: true}
}

type compositeNode struct {
	op         Operation
	children   []QueryNode
	components []Component
	nodeMask   mask.Mask
	writes     bool
}

type leafNode struct {
	components []Component
	nodeMask   mask.Mask
}

type query struct {
	root QueryNode
}

func newQuery() QueryBuilder {
	return &query{}
}

func newCompositeNode(op Operation, components []Component, writes bool) *compositeNode {
	return &compositeNode{
		op:         op,
		children:   make([]QueryNode, 0),
		components: components,
		nodeMask:   maskOf(components),
		writes:     writes,
	}
}

func newLeafNode(components []Component) *leafNode {
	return &leafNode{components: components, nodeMask: maskOf(components)}
}

func maskOf(components []Component) mask.Mask {
	var m mask.Mask
	for _, comp := range components {
		m.Mark(uint32(comp.Type().ID()))
	}
	return m
}

func (n *compositeNode) Evaluate(archetype mask.Maskable) bool {
	archeMask := archetype.Mask()

	switch n.op {
	case OpAnd:
		if !archeMask.ContainsAll(n.nodeMask) {
			return false
		}
		for _, child := range n.children {
			if !child.Evaluate(archetype) {
				return false
			}
		}
		return true

	case OpOr:
		if archeMask.ContainsAny(n.nodeMask) {
			return true
		}
		for _, child := range n.children {
			if child.Evaluate(archetype) {
				return true
			}
		}
		return false

	case OpNot:
		if len(n.children) == 0 {
			return archeMask.ContainsNone(n.nodeMask)
		}
		for _, child := range n.children {
			if child.Evaluate(archetype) {
				return false
			}
		}
		return !archeMask.ContainsAny(n.nodeMask)
	}
	return false
}

func (n *compositeNode) Writes() bool {
	if n.op == OpNot {
		return false
	}
	if n.writes {
		return true
	}
	for _, child := range n.children {
		if child.Writes() {
			return true
		}
	}
	return false
}

// Evaluate on a leaf without components matches every archetype
func (n *leafNode) Evaluate(archetype mask.Maskable) bool {
	return archetype.Mask().ContainsAll(n.nodeMask)
}

func (n *leafNode) Writes() bool {
	return false
}

func (q *query) And(items ...any) QueryNode {
	components, children, writes := q.processItems(items...)
	node := newCompositeNode(OpAnd, components, writes)
	node.children = children
	if q.root == nil {
		q.root = node
	}
	return node
}

func (q *query) Or(items ...any) QueryNode {
	components, children, writes := q.processItems(items...)
	node := newCompositeNode(OpOr, components, writes)
	node.children = children
	if q.root == nil {
		q.root = node
	}
	return node
}

func (q *query) Not(items ...any) QueryNode {
	components, children, _ := q.processItems(items...)
	node := newCompositeNode(OpNot, components, false)
	node.children = children
	if q.root == nil {
		q.root = node
	}
	return node
}

// Any matches every archetype and requests no access
func (q *query) Any() QueryNode {
	node := newLeafNode(nil)
	if q.root == nil {
		q.root = node
	}
	return node
}

// Has is a conjunction of read-only parameters
func (q *query) Has(items ...Component) QueryNode {
	node := newLeafNode(items)
	if q.root == nil {
		q.root = node
	}
	return node
}

func (q *query) processItems(items ...any) ([]Component, []QueryNode, bool) {
	components := make([]Component, 0)
	children := make([]QueryNode, 0)
	writes := false

	for _, item := range items {
		switch v := item.(type) {
		case Access:
			components = append(components, v.Component)
			writes = writes || v.write
		case Component:
			components = append(components, v)
			writes = true
		case []Component:
			components = append(components, v...)
			writes = writes || len(v) > 0
		case QueryNode:
			children = append(children, v)
		}
	}

	return components, children, writes
}

func (q *query) Evaluate(archetype mask.Maskable) bool {
	if q.root == nil {
		return false
	}
	return q.root.Evaluate(archetype)
}

func (q *query) Writes() bool {
	if q.root == nil {
		return false
	}
	return q.root.Writes()
}
