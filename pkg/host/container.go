package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"hotswap/internal/unit"
)

// ErrComponentNotFound is returned when a container does not hold a component.
var ErrComponentNotFound = errors.New("component not found")

// Container is the framework's object-attachment API.
type Container interface {
	ID() string
	Components() []*unit.Instance
	Attach(t *unit.TypeDescriptor) (*unit.Instance, error)
	Detach(inst *unit.Instance) error
}

// FindComponent returns the first component whose type has the given simple
// name.
func FindComponent(c Container, typeName string) (*unit.Instance, bool) {
	for _, comp := range c.Components() {
		if comp != nil && comp.Type.Name == typeName {
			return comp, true
		}
	}
	return nil, false
}

// Node is an in-memory container.
type Node struct {
	id         string
	mu         sync.Mutex
	components []*unit.Instance
}

// NewNode creates an empty node.
func NewNode(id string) *Node {
	return &Node{id: id}
}

// ID returns the node's identifier.
func (n *Node) ID() string {
	return n.id
}

// Components returns the attached components in attach order.
func (n *Node) Components() []*unit.Instance {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*unit.Instance(nil), n.components...)
}

// Attach constructs a component of type t and attaches it.
func (n *Node) Attach(t *unit.TypeDescriptor) (*unit.Instance, error) {
	inst, err := t.New()
	if err != nil {
		return nil, fmt.Errorf("attach %s to %s: %w", t.Name, n.id, err)
	}
	n.mu.Lock()
	n.components = append(n.components, inst)
	n.mu.Unlock()
	return inst, nil
}

// AttachInstance attaches an existing instance, e.g. a compiled-in component.
func (n *Node) AttachInstance(inst *unit.Instance) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.components = append(n.components, inst)
}

// Detach removes a component. The component is destroyed from the node's
// point of view; references held elsewhere are not fixed up.
func (n *Node) Detach(inst *unit.Instance) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, c := range n.components {
		if c.ID == inst.ID {
			n.components = append(n.components[:i], n.components[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s on %s: %w", inst, n.id, ErrComponentNotFound)
}

// Scene is a named set of nodes.
type Scene struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{nodes: make(map[string]*Node)}
}

// Node returns the node with the given id, creating it on first use.
func (s *Scene) Node(id string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		n = NewNode(id)
		s.nodes[id] = n
	}
	return n
}

// IDs lists node ids, sorted.
func (s *Scene) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
