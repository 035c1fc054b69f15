// Package dag implements the directed acyclic dependency graph used by the
// pipeline scheduler. Construction validates that node names are unique,
// every dependency resolves, and the graph contains no cycle.
package dag

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// NamedNode is the input contract for building a DAG.
type NamedNode interface {
	// NodeName uniquely identifies a node.
	NodeName() string
	// PrevNodeNames lists the immediately preceding nodes of this node.
	PrevNodeNames() []string
}

// Node is a resolved node inside a DAG.
type Node interface {
	NamedNode
	PrevNodes() []Node
	NextNodes() []Node
}

// DAG is an immutable dependency graph.
type DAG struct {
	nodes map[string]*node
	// order holds one valid topological order, proving acyclicity.
	order []string
}

// New builds a DAG from the given nodes.
func New(nodes []NamedNode) (*DAG, error) {
	g := &DAG{nodes: make(map[string]*node, len(nodes))}

	for _, n := range nodes {
		if _, ok := g.nodes[n.NodeName()]; ok {
			return nil, errors.Errorf("duplicate node: %s", n.NodeName())
		}
		g.nodes[n.NodeName()] = &node{name: n.NodeName(), prevNames: n.PrevNodeNames()}
	}

	for _, n := range g.nodes {
		for _, prevName := range n.prevNames {
			prev, ok := g.nodes[prevName]
			if !ok {
				return nil, errors.Errorf("node %q depends on a nonexistent node %q", n.name, prevName)
			}
			if prev == n {
				return nil, errors.Errorf("self cycle detected: node %q depends on itself", n.name)
			}
			n.prevNodes = append(n.prevNodes, prev)
			prev.nextNodes = append(prev.nextNodes, n)
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// Len returns the number of nodes in the graph.
func (g *DAG) Len() int {
	return len(g.nodes)
}

// Node returns the named node, or nil when absent.
func (g *DAG) Node(name string) Node {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return n
}

// Roots returns the names of all nodes with no predecessors, sorted.
func (g *DAG) Roots() []string {
	var roots []string
	for _, n := range g.nodes {
		if len(n.prevNodes) == 0 {
			roots = append(roots, n.name)
		}
	}
	sort.Strings(roots)
	return roots
}

// TopologicalOrder returns a valid execution order over all nodes.
func (g *DAG) TopologicalOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// topoSort runs Kahn's algorithm; any remainder is a cycle.
func (g *DAG) topoSort() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for name, n := range g.nodes {
		indegree[name] = len(n.prevNodes)
	}

	var ready []string
	for name, d := range indegree {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, next := range g.nodes[name].nextNodes {
			indegree[next.name]--
			if indegree[next.name] == 0 {
				ready = append(ready, next.name)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var cyclic []string
		for name, d := range indegree {
			if d > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, errors.Errorf("cycle detected among nodes: %s", strings.Join(cyclic, ", "))
	}
	return order, nil
}

type node struct {
	name      string
	prevNames []string

	prevNodes []*node
	nextNodes []*node
}

func (n *node) NodeName() string {
	return n.name
}

func (n *node) PrevNodeNames() []string {
	return n.prevNames
}

func (n *node) PrevNodes() []Node {
	r := make([]Node, 0, len(n.prevNodes))
	for _, prev := range n.prevNodes {
		r = append(r, prev)
	}
	return r
}

func (n *node) NextNodes() []Node {
	r := make([]Node, 0, len(n.nextNodes))
	for _, next := range n.nextNodes {
		r = append(r, next)
	}
	return r
}
