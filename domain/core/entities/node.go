package entities

import "github.com/suibari/graph-be-more-blue/domain/core/valueobjects"

// Node is one identity rendered into the introduction graph. Image holds an
// inline-encoded avatar (data URI) or the empty string when the avatar was
// missing or could not be fetched.
type Node struct {
	ID            valueobjects.Identity
	Image         string
	Name          string
	Handle        valueobjects.Handle
	Rank          float64
	Introductions []IntroductionRecord
	Tags          []string
}

// Clone returns a deep copy of the node. Merge operations work on copies so
// that caller-held graphs are never mutated in place.
func (n *Node) Clone() *Node {
	c := *n
	c.Introductions = make([]IntroductionRecord, len(n.Introductions))
	copy(c.Introductions, n.Introductions)
	c.Tags = make([]string, len(n.Tags))
	copy(c.Tags, n.Tags)
	return &c
}

// HasIntroduction reports whether the node already carries an introduction
// with the given de-duplication key.
func (n *Node) HasIntroduction(key string) bool {
	for _, intro := range n.Introductions {
		if intro.DedupKey() == key {
			return true
		}
	}
	return false
}

// Edge is a directed "source introduced target" relationship. Edge identity
// is the ordered (source, target) pair; a graph never holds two edges with
// the same pair.
type Edge struct {
	Source valueobjects.Identity
	Target valueobjects.Identity
}

// Key returns the canonical identity of the edge.
func (e Edge) Key() string {
	return e.Source.String() + "\x00" + e.Target.String()
}
