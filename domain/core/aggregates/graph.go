// Package aggregates contains the graph aggregate root.
package aggregates

import (
	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
)

// Graph is a self-consistent set of nodes and directed introduction edges.
// Nodes are keyed by identity and edges by their (source, target) pair.
//
// Invariant: every edge's source and target reference a node present in the
// same graph. AddEdge enforces this by dropping edges with absent endpoints,
// so a dangling edge can never be stored.
//
// Insertion order of nodes and edges is preserved so that serialized
// snapshots are deterministic.
type Graph struct {
	nodes     map[valueobjects.Identity]*entities.Node
	nodeOrder []valueobjects.Identity
	edges     map[string]entities.Edge
	edgeOrder []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[valueobjects.Identity]*entities.Node),
		edges: make(map[string]entities.Edge),
	}
}

// AddNode inserts a node, replacing any node with the same identity while
// keeping its original position.
func (g *Graph) AddNode(node *entities.Node) {
	if node == nil || node.ID.IsEmpty() {
		return
	}
	if _, exists := g.nodes[node.ID]; !exists {
		g.nodeOrder = append(g.nodeOrder, node.ID)
	}
	g.nodes[node.ID] = node
}

// AddEdge inserts a directed edge. Edges whose endpoints are not present in
// the graph are dropped, and duplicate (source, target) pairs are ignored.
// It reports whether the edge was actually added.
func (g *Graph) AddEdge(source, target valueobjects.Identity) bool {
	if _, ok := g.nodes[source]; !ok {
		return false
	}
	if _, ok := g.nodes[target]; !ok {
		return false
	}
	edge := entities.Edge{Source: source, Target: target}
	key := edge.Key()
	if _, exists := g.edges[key]; exists {
		return false
	}
	g.edges[key] = edge
	g.edgeOrder = append(g.edgeOrder, key)
	return true
}

// Node returns the node with the given identity, or nil.
func (g *Graph) Node(id valueobjects.Identity) *entities.Node {
	return g.nodes[id]
}

// HasNode reports whether the graph contains the given identity.
func (g *Graph) HasNode(id valueobjects.Identity) bool {
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether the graph contains a source→target edge.
func (g *Graph) HasEdge(source, target valueobjects.Identity) bool {
	_, ok := g.edges[entities.Edge{Source: source, Target: target}.Key()]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*entities.Node {
	nodes := make([]*entities.Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []entities.Edge {
	edges := make([]entities.Edge, 0, len(g.edgeOrder))
	for _, key := range g.edgeOrder {
		edges = append(edges, g.edges[key])
	}
	return edges
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	for _, id := range g.nodeOrder {
		c.AddNode(g.nodes[id].Clone())
	}
	for _, key := range g.edgeOrder {
		edge := g.edges[key]
		c.AddEdge(edge.Source, edge.Target)
	}
	return c
}
