package services

import (
	"fmt"

	"github.com/suibari/graph-be-more-blue/domain/core/aggregates"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
)

// MergeResult is the outcome of folding an expansion subgraph into an
// existing graph. When nothing changed, Graph is nil and Notice carries a
// human-readable explanation callers can surface instead of a UI update.
type MergeResult struct {
	Graph   *aggregates.Graph
	Changed bool
	Notice  string
}

// Merger combines an existing graph with a freshly built subgraph without
// mutating either input.
type Merger struct{}

// NewMerger creates a merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Merge folds incoming into existing and reports whether anything changed.
//
// Node reconciliation: nodes present in both graphs keep their identity;
// their base attributes (name, rank, image, handle) are overwritten by the
// incoming values, and introduction lists are unioned with de-duplication
// on the (author, subject) key. The entry already present wins; a genuinely
// new introduction appends, folds its tags into the node's tag union, and
// marks the merge changed. Tags are never replaced wholesale: they stay the
// union of every introduction the node has accumulated.
// Nodes only present in incoming are added wholesale. Edges are keyed by
// (source, target): pairs already present are kept, new pairs are added.
//
// expanded names the identity the incoming subgraph was built around; it is
// only used to phrase the no-change notice.
func (m *Merger) Merge(existing, incoming *aggregates.Graph, expanded valueobjects.Identity) MergeResult {
	result := existing.Clone()
	changed := false

	for _, incomingNode := range incoming.Nodes() {
		current := result.Node(incomingNode.ID)
		if current == nil {
			result.AddNode(incomingNode.Clone())
			changed = true
			continue
		}

		// Base attributes are last-write-wins from the incoming snapshot.
		// Tags are deliberately excluded: the incoming subgraph only knows
		// the tags of its own introductions.
		current.Image = incomingNode.Image
		current.Name = incomingNode.Name
		current.Handle = incomingNode.Handle
		current.Rank = incomingNode.Rank

		for _, intro := range incomingNode.Introductions {
			if current.HasIntroduction(intro.DedupKey()) {
				continue
			}
			current.Introductions = append(current.Introductions, intro)
			current.Tags = unionTags(current.Tags, intro.Tags)
			changed = true
		}
	}

	for _, edge := range incoming.Edges() {
		if result.HasEdge(edge.Source, edge.Target) {
			continue
		}
		if result.AddEdge(edge.Source, edge.Target) {
			changed = true
		}
	}

	if !changed {
		return MergeResult{
			Changed: false,
			Notice:  noChangeNotice(existing, expanded),
		}
	}

	return MergeResult{Graph: result, Changed: true}
}

// noChangeNotice phrases the "no new information" message off the expanded
// node's display name when it is known.
func noChangeNotice(existing *aggregates.Graph, expanded valueobjects.Identity) string {
	name := "This user"
	if node := existing.Node(expanded); node != nil {
		switch {
		case node.Name != "":
			name = node.Name
		case node.Handle != "":
			name = node.Handle.String()
		}
	}
	return fmt.Sprintf("%s hasn't introduced anyone new yet", name)
}

// unionTags appends the tags not already present, preserving order.
func unionTags(tags []string, more []string) []string {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		seen[t] = struct{}{}
	}
	for _, t := range more {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}
